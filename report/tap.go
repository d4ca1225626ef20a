package report

import (
	"strings"

	"github.com/dfinity-lab/raclette/core"
)

// Tap emits the report in the format specified on testanything.org.
type Tap struct {
	w     *Writer
	count int
	total int
}

func NewTap(w *Writer) *Tap {
	return &Tap{w: w}
}

func (r *Tap) Init(plan []core.Task) {
	r.w.Printf("TAP version 13\n")
	r.w.Printf("1..%d\n", len(plan))
	r.total = len(plan)
}

func (r *Tap) Start(name string) {}

func (r *Tap) Stage(fullName []string, frame *core.StageReport) {
	r.Report(core.StageAsCompleted(fullName, frame))
}

func (r *Tap) Report(task *core.CompletedTask) {
	r.count++

	ok := task.IsOk()
	suffix := ""
	if task.Status.Kind == core.KindSkipped {
		suffix = " # SKIP " + task.Status.Reason
	}

	if ok {
		r.w.Styled(styleGreen, "ok ")
	} else {
		r.w.Styled(styleRed, "not ok ")
	}
	r.w.Printf("%d - %s%s\n", r.count, task.Name(), suffix)

	switch task.Status.Kind {
	case core.KindSuccess:
		r.w.Printf("# completed in %v\n", task.Duration)
	case core.KindFailure:
		r.w.Printf("# process returned %d after %v\n", task.Status.ExitCode, task.Duration)
	case core.KindSignaled:
		r.w.Printf("# process was killed with %s after %v\n", task.Status.Signal, task.Duration)
	case core.KindTimeout:
		r.w.Printf("# timed out after %v\n", task.Duration)
	}

	if !ok {
		r.dump("stdout", task.Stdout)
		r.dump("stderr", task.Stderr)
	}
}

func (r *Tap) dump(name string, out []byte) {
	if len(out) == 0 {
		return
	}
	r.w.Printf("# --- %s ---\n", name)
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		r.w.Printf("# %s\n", line)
	}
}

func (r *Tap) Done() {}
