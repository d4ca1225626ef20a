package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dfinity-lab/raclette/core"
)

func TestLibTest_Output(t *testing.T) {
	var out bytes.Buffer
	r := NewLibTest(NewWriter(&out, core.WhenNever))

	r.Init(plan(3))
	r.Report(&core.CompletedTask{
		FullName: []string{"a"},
		Status:   core.Success(),
	})
	r.Report(&core.CompletedTask{
		FullName: []string{"b"},
		Status:   core.Skipped("flaky"),
	})
	r.Report(&core.CompletedTask{
		FullName: []string{"c"},
		Duration: time.Second,
		Stderr:   []byte("it broke\n"),
		Status:   core.Signaled("SIGSEGV"),
	})
	r.Done()

	text := out.String()
	require.Contains(t, text, "running 3 tests")
	require.Contains(t, text, "test a ... ok")
	require.Contains(t, text, "test b ... ignored, flaky")
	require.Contains(t, text, "test c ... FAILED")
	require.Contains(t, text, "failures:")
	require.Contains(t, text, "---- c ----")
	require.Contains(t, text, "process was killed with SIGSEGV after 1s")
	require.Contains(t, text, "it broke")
	require.Contains(t, text, "test result: FAILED. 1 passed; 1 failed; 1 ignored")
}

func TestLibTest_AllPass(t *testing.T) {
	var out bytes.Buffer
	r := NewLibTest(NewWriter(&out, core.WhenNever))

	r.Init(plan(1))
	r.Report(&core.CompletedTask{FullName: []string{"a"}, Status: core.Success()})
	r.Done()

	text := out.String()
	require.Contains(t, text, "test result: ok. 1 passed; 0 failed; 0 ignored")
	require.NotContains(t, text, "failures:")
}

func TestLibTest_RetainsFailureCopy(t *testing.T) {
	var out bytes.Buffer
	r := NewLibTest(NewWriter(&out, core.WhenNever))

	r.Init(plan(1))
	task := &core.CompletedTask{
		FullName: []string{"a"},
		Stderr:   []byte("original"),
		Status:   core.Failure(1),
	}
	r.Report(task)
	// the pointee is only valid during the call; mutate it afterwards
	task.Stderr[0] = 'X'
	r.Done()

	require.Contains(t, out.String(), "original")
}
