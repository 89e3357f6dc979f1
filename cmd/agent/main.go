package main

import (
	"github.com/Guoweix/bistu-edu-safety-automation/internal/bootstrap"
)

func main() {
	bootstrap.NewApp().Run()
}
