package report

import (
	"strings"
	"time"

	"github.com/dfinity-lab/raclette/core"
)

// LibTest mimics the output of the Rust built-in test harness. It is
// the default formatter.
type LibTest struct {
	w *Writer

	started  time.Time
	passed   int
	failed   int
	ignored  int
	failures []core.CompletedTask
}

func NewLibTest(w *Writer) *LibTest {
	return &LibTest{w: w}
}

func (r *LibTest) Init(plan []core.Task) {
	r.started = time.Now()
	r.w.Printf("\nrunning %d tests\n", len(plan))
}

func (r *LibTest) Start(name string) {}

func (r *LibTest) Stage(fullName []string, frame *core.StageReport) {
	r.Report(core.StageAsCompleted(fullName, frame))
}

func (r *LibTest) Report(task *core.CompletedTask) {
	r.w.Printf("test %s ... ", task.Name())
	switch task.Status.Kind {
	case core.KindSuccess:
		r.passed++
		r.w.Styled(styleGreen, "ok")
		r.w.Printf("\n")
	case core.KindSkipped:
		r.ignored++
		r.w.Styled(styleYellow, "ignored")
		r.w.Printf(", %s\n", task.Status.Reason)
	default:
		r.failed++
		r.w.Styled(styleRed, "FAILED")
		r.w.Printf("\n")
		// retain a copy, the pointee is only valid during this call
		kept := *task
		kept.Stdout = append([]byte(nil), task.Stdout...)
		kept.Stderr = append([]byte(nil), task.Stderr...)
		r.failures = append(r.failures, kept)
	}
}

func (r *LibTest) Done() {
	if len(r.failures) > 0 {
		r.w.Printf("\nfailures:\n")
		for i := range r.failures {
			task := &r.failures[i]
			r.w.Printf("\n---- %s ----\n", task.Name())
			switch task.Status.Kind {
			case core.KindFailure:
				r.w.Printf("process returned %d after %v\n", task.Status.ExitCode, task.Duration)
			case core.KindSignaled:
				r.w.Printf("process was killed with %s after %v\n", task.Status.Signal, task.Duration)
			case core.KindTimeout:
				r.w.Printf("timed out after %v\n", task.Duration)
			}
			r.dump("stdout", task.Stdout)
			r.dump("stderr", task.Stderr)
		}
	}

	verdict := "ok"
	style := styleGreen
	if r.failed > 0 {
		verdict = "FAILED"
		style = styleRed
	}
	r.w.Printf("\ntest result: ")
	r.w.Styled(style, "%s", verdict)
	r.w.Printf(". %d passed; %d failed; %d ignored; finished in %.2fs\n",
		r.passed, r.failed, r.ignored, time.Since(r.started).Seconds())
}

func (r *LibTest) dump(name string, out []byte) {
	if len(out) == 0 {
		return
	}
	r.w.Printf("---- %s ----\n%s", name, string(out))
	if !strings.HasSuffix(string(out), "\n") {
		r.w.Printf("\n")
	}
}
