package core

import (
	"fmt"
	"os"
)

// TaskEnv names the task a worker process must run. A binary embedding
// raclette routes into RunWorker when this variable is set, before
// doing anything else.
const TaskEnv = "RACLETTE_TASK"

// workerStageFD is the file descriptor the stage pipe occupies in the
// child (the first entry after stdin/stdout/stderr).
const workerStageFD = 3

// WorkerTask returns the task name if the current process was spawned
// as a test worker by a supervisor.
func WorkerTask() (string, bool) {
	v := os.Getenv(TaskEnv)
	return v, v != ""
}

// RunWorker executes the named task of tree in the current process and
// never returns. The plan is rebuilt without filters so the name
// resolves regardless of the parent's configuration. A normal return
// of the assertion exits 0; a panic aborts the process with a non-zero
// code and its message on stderr, which the supervisor classifies.
func RunWorker(tree TestTree, name string) {
	plan := MakePlan(&Config{}, tree)
	for i := range plan {
		if plan[i].Name() != name {
			continue
		}
		rec := NewStageRecorder(os.NewFile(workerStageFD, "|stage"))
		plan[i].Work(rec)
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "worker: no such task: %s\n", name)
	os.Exit(2)
}
