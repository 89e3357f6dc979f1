package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/entity"
)

// Reporter prints per-module and per-item progress to the console. Humans sit
// next to this tool while it runs (they have to log in by hand), so output is
// meant for eyes, not log collectors — structured logging lives in zap.
type Reporter struct {
	out io.Writer
}

func NewReporter() *Reporter {
	return &Reporter{out: os.Stdout}
}

// NewReporterWithWriter is used by tests to capture output.
func NewReporterWithWriter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

func (r *Reporter) Banner() {
	fmt.Fprintln(r.out, `
╔═══════════════════════════════════════════════╗
║        📚  Course Autopilot  🤖               ║
║   Automated e-learning module completion      ║
╚═══════════════════════════════════════════════╝`)
}

func (r *Reporter) LoginPrompt(timeout time.Duration) {
	fmt.Fprintln(r.out, "\n📢 Please complete the login in the browser window")
	fmt.Fprintf(r.out, "⏳ Waiting up to %s for login to finish...\n", timeout)
}

func (r *Reporter) LoginOK() {
	fmt.Fprintln(r.out, "✅ Login detected")
}

func (r *Reporter) LoginFailed(err error) {
	fmt.Fprintf(r.out, "❌ Login not detected: %v\n", err)
}

func (r *Reporter) ModulesFound(count int) {
	fmt.Fprintf(r.out, "📊 Found %d course modules\n", count)
}

func (r *Reporter) ModuleStart(index, total int, module entity.Module) {
	fmt.Fprintf(r.out, "\n📖 [%d/%d] %s (%d/%d done)\n",
		index+1, total, module.Label, module.Progress.Finished, module.Progress.Total)
}

func (r *Reporter) ModuleDone(module entity.Module) {
	fmt.Fprintf(r.out, "✅ Module finished: %s\n", module.Label)
}

func (r *Reporter) ModuleStalled(module entity.Module) {
	fmt.Fprintf(r.out, "⚠️  Module stalled, skipping the rest: %s\n", module.Label)
}

func (r *Reporter) ItemStart(item entity.CourseItem) {
	fmt.Fprintf(r.out, "  🎬 Starting: %s\n", item.Label)
}

func (r *Reporter) ItemDone(item entity.CourseItem) {
	fmt.Fprintf(r.out, "  ✅ Completed: %s\n", item.Label)
}

func (r *Reporter) ItemFailed(item entity.CourseItem, err error) {
	fmt.Fprintf(r.out, "  ❌ Failed, moving on: %s (%v)\n", item.Label, err)
}

func (r *Reporter) Summary(session *entity.Session) {
	elapsed := time.Since(session.StartedAt).Round(time.Second)
	if session.FinishedAt != nil {
		elapsed = session.FinishedAt.Sub(session.StartedAt).Round(time.Second)
	}

	fmt.Fprintf(r.out, "\n🎉 Run finished: %d items completed, %d failed, took %s\n",
		session.ItemsDriven, session.ItemsFailed, elapsed)
}
