package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/entity"

	"github.com/stretchr/testify/assert"
)

func TestReporterModuleOutput(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporterWithWriter(&buf)

	module := entity.Module{
		Label:    "Fire Safety",
		Progress: entity.ModuleProgress{Finished: 3, Total: 5},
	}

	r.ModuleStart(0, 4, module)
	r.ItemStart(entity.CourseItem{Label: "Intro Video"})
	r.ItemDone(entity.CourseItem{Label: "Intro Video"})
	r.ModuleStalled(module)

	out := buf.String()
	assert.Contains(t, out, "[1/4] Fire Safety (3/5 done)")
	assert.Contains(t, out, "Starting: Intro Video")
	assert.Contains(t, out, "Completed: Intro Video")
	assert.Contains(t, out, "stalled")
}

func TestReporterSummaryUsesFinishedAt(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporterWithWriter(&buf)

	session := entity.NewSession()
	session.StartedAt = time.Now().Add(-90 * time.Second)
	finished := session.StartedAt.Add(30 * time.Second)
	session.FinishedAt = &finished
	session.ItemsDriven = 7
	session.ItemsFailed = 1

	r.Summary(session)

	out := buf.String()
	assert.Contains(t, out, "7 items completed")
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "30s")
}
