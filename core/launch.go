//go:build linux

package core

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// runningTask is a freshly launched child, not yet registered with the
// poller. The fds are the parent-side non-blocking read ends.
type runningTask struct {
	fullName  []string
	pid       int
	startedAt time.Time
	stdoutFD  int
	stderrFD  int
	stageFD   int
}

// launch starts the task in its own process and process group. The
// child is a re-exec of the current binary: TaskEnv carries the task
// name and the worker entry runs the assertion with stdout, stderr and
// the stage pipe wired to the parent's read ends.
func launch(task *Task) (*runningTask, error) {
	var pipes [3][2]int // stdout, stderr, stage
	for i := range pipes {
		if err := unix.Pipe2(pipes[i][:], unix.O_CLOEXEC); err != nil {
			closePipes(pipes[:i])
			return nil, fmt.Errorf("%w: pipe: %v", ErrLaunch, err)
		}
		if err := unix.SetNonblock(pipes[i][0], true); err != nil {
			closePipes(pipes[:i+1])
			return nil, fmt.Errorf("%w: set nonblock: %v", ErrLaunch, err)
		}
	}

	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}

	wOut := os.NewFile(uintptr(pipes[0][1]), "|stdout")
	wErr := os.NewFile(uintptr(pipes[1][1]), "|stderr")
	wStage := os.NewFile(uintptr(pipes[2][1]), "|stage")

	// Setpgid makes the child a process-group leader between fork and
	// exec, so the whole group can be killed on timeout. This also
	// means the parent never races the child on setpgid.
	proc, err := os.StartProcess(exe, []string{os.Args[0]}, &os.ProcAttr{
		Env:   append(os.Environ(), TaskEnv+"="+task.Name()),
		Files: []*os.File{os.Stdin, wOut, wErr, wStage},
		Sys:   &syscall.SysProcAttr{Setpgid: true},
	})

	// parent drops the sender ends either way
	wOut.Close()
	wErr.Close()
	wStage.Close()

	if err != nil {
		unix.Close(pipes[0][0])
		unix.Close(pipes[1][0])
		unix.Close(pipes[2][0])
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	pid := proc.Pid
	proc.Release() // reaped via wait4, not via os.Process

	return &runningTask{
		fullName:  task.FullName,
		pid:       pid,
		startedAt: time.Now(),
		stdoutFD:  pipes[0][0],
		stderrFD:  pipes[1][0],
		stageFD:   pipes[2][0],
	}, nil
}

func closePipes(pipes [][2]int) {
	for _, p := range pipes {
		unix.Close(p[0])
		unix.Close(p[1])
	}
}
