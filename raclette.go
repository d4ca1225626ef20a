// Package raclette is a parallel test runner that executes every test
// case in its own child process, so crashes, nontermination and
// signals cannot disturb sibling tests or the driver.
//
// Tests are declared as a tree of named suites and cases:
//
//	func main() {
//		raclette.DefaultMain(raclette.TestSuite("arith",
//			raclette.TestCase("add", func() {
//				if 2+2 != 4 {
//					panic("math is broken")
//				}
//			}),
//		))
//	}
package raclette

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dfinity-lab/raclette/core"
	"github.com/dfinity-lab/raclette/report"
)

type (
	TestTree      = core.TestTree
	Options       = core.Options
	Config        = core.Config
	Task          = core.Task
	CompletedTask = core.CompletedTask
	Reporter      = core.Reporter
	StageRecorder = core.StageRecorder
	StageStatus   = core.StageStatus
)

// TestCase returns a leaf that runs fn in its own process.
func TestCase(name string, fn func()) TestTree {
	return TestTree{
		Name:      name,
		Assertion: func(*core.StageRecorder) { fn() },
	}
}

// TestCaseWithStages returns a leaf whose body can stream intermediate
// sub-step outcomes through the recorder.
func TestCaseWithStages(name string, fn func(*StageRecorder)) TestTree {
	return TestTree{Name: name, Assertion: core.Assertion(fn)}
}

// TestSuite groups tests under a common name.
func TestSuite(name string, tests ...TestTree) TestTree {
	return TestTree{Name: name, Children: tests}
}

// Skip marks the whole subtree as skipped with the given reason. The
// reason is inherited by every descendant that does not set its own.
func Skip(reason string, t TestTree) TestTree {
	t.Opts.SkipReason = reason
	return t
}

// ShouldPanic wraps fn so that the test passes only if fn panics with a
// message containing expected. Any other outcome aborts the child with
// a non-zero exit, which the supervisor reports as a failure.
func ShouldPanic(expected string, fn func()) func() {
	return func() {
		defer func() {
			r := recover()
			if r == nil {
				fmt.Println("note: test did not panic as expected")
				os.Exit(1)
			}
			msg := fmt.Sprint(r)
			if !strings.Contains(msg, expected) {
				fmt.Printf("note: panic did not contain expected string\n"+
					"      panic message: %q\n expected substring: %q\n", msg, expected)
				os.Exit(1)
			}
		}()
		fn()
	}
}

// Run builds the plan for tree under cfg and executes it with rep,
// returning the completed tasks in completion order. If the current
// process is a test worker it runs that single task instead and never
// returns.
func Run(cfg *Config, tree TestTree, rep Reporter) ([]CompletedTask, error) {
	if name, ok := core.WorkerTask(); ok {
		core.RunWorker(tree, name)
	}
	return core.Execute(cfg, core.MakePlan(cfg, tree), rep)
}

// RunWithConfig is Run with the reporter picked by cfg.
func RunWithConfig(cfg *Config, tree TestTree) ([]CompletedTask, error) {
	return Run(cfg, tree, report.New(cfg))
}

// DefaultMain parses the command line, runs tree and exits: 0 if every
// test passed or was skipped, non-zero otherwise.
func DefaultMain(tree TestTree) {
	if name, ok := core.WorkerTask(); ok {
		core.RunWorker(tree, name)
	}

	cfg, err := core.FromArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	results, err := core.Execute(cfg, core.MakePlan(cfg, tree), report.New(cfg))
	if err != nil {
		log.Error().Err(err).Msg("test run aborted")
		os.Exit(2)
	}
	for i := range results {
		if !results[i].IsOk() {
			os.Exit(1)
		}
	}
}
