package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dfinity-lab/raclette/core"
)

func plan(n int) []core.Task {
	tasks := make([]core.Task, n)
	for i := range tasks {
		tasks[i] = core.Task{FullName: []string{"suite", "case"}}
	}
	return tasks
}

func TestTap_Output(t *testing.T) {
	var out bytes.Buffer
	r := NewTap(NewWriter(&out, core.WhenNever))

	r.Init(plan(2))
	r.Start("suite::good")
	r.Report(&core.CompletedTask{
		FullName: []string{"suite", "good"},
		Duration: time.Second,
		Status:   core.Success(),
	})
	r.Start("suite::bad")
	r.Report(&core.CompletedTask{
		FullName: []string{"suite", "bad"},
		Duration: 2 * time.Second,
		Stdout:   []byte("some output\n"),
		Stderr:   []byte("a panic message\n"),
		Status:   core.Failure(101),
	})
	r.Done()

	text := out.String()
	require.Contains(t, text, "TAP version 13\n1..2\n")
	require.Contains(t, text, "ok 1 - suite::good")
	require.Contains(t, text, "not ok 2 - suite::bad")
	require.Contains(t, text, "# process returned 101 after 2s")
	require.Contains(t, text, "# --- stdout ---\n# some output")
	require.Contains(t, text, "# --- stderr ---\n# a panic message")
}

func TestTap_SkipAndTimeout(t *testing.T) {
	var out bytes.Buffer
	r := NewTap(NewWriter(&out, core.WhenNever))

	r.Init(plan(2))
	r.Report(&core.CompletedTask{
		FullName: []string{"a"},
		Status:   core.Skipped("why not"),
	})
	r.Report(&core.CompletedTask{
		FullName: []string{"b"},
		Duration: time.Second,
		Status:   core.Timeout(),
	})
	r.Done()

	text := out.String()
	require.Contains(t, text, "ok 1 - a # SKIP why not")
	require.Contains(t, text, "not ok 2 - b")
	require.Contains(t, text, "# timed out after 1s")
}

func TestTap_StageSynthesizesSubEntry(t *testing.T) {
	var out bytes.Buffer
	r := NewTap(NewWriter(&out, core.WhenNever))

	r.Init(plan(1))
	r.Stage([]string{"t"}, &core.StageReport{
		Name:     "s1",
		Status:   core.StageFailure(42),
		Duration: time.Millisecond,
	})
	r.Done()

	require.Contains(t, out.String(), "not ok 1 - t::s1")
}
