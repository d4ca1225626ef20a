package core

import "slices"

// Reporter receives lifecycle callbacks from the supervisor. All
// methods are called from the single supervisor goroutine and must not
// block. For each task, Start precedes any Stage which precedes Report;
// Init precedes every Start and Done succeeds every Report.
type Reporter interface {
	// Init is called once, before any test runs, with the full plan.
	Init(plan []Task)
	// Start is called once per task at admission, including skipped tasks.
	Start(name string)
	// Stage is called for every stage frame decoded from the task's
	// side channel, in the child's emission order.
	Stage(fullName []string, frame *StageReport)
	// Report is called once per task at retirement (or immediately for
	// skipped tasks). The pointee is only valid during the call.
	Report(t *CompletedTask)
	// Done is called once, after the last retirement.
	Done()
}

// StageAsCompleted synthesizes a completed sub-entry for a stage frame:
// the task's path extended by the stage name. Reporters that do not
// treat stages specially can feed the result to their Report path.
func StageAsCompleted(fullName []string, frame *StageReport) *CompletedTask {
	var status Status
	switch frame.Status.Kind {
	case KindFailure:
		status = Failure(frame.Status.ExitCode)
	case KindSkipped:
		status = Skipped(frame.Status.Reason)
	default:
		status = Success()
	}
	return &CompletedTask{
		FullName: append(slices.Clone(fullName), frame.Name),
		Duration: frame.Duration,
		Status:   status,
	}
}
