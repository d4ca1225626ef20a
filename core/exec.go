//go:build linux

package core

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"
)

// pollTick caps a single readiness wait.
const pollTick = 100 * time.Millisecond

// scratchSize is the fixed read buffer shared by all pipe reads.
const scratchSize = 4096

var capturePool bytebufferpool.Pool

// observedTask is a live child under supervision. A pipe fd of -1
// means its end of stream was reached and the fd is closed; the task
// retires once all three are closed and a status is known.
type observedTask struct {
	fullName  []string
	pid       int
	startedAt time.Time

	stdoutFD int
	stderrFD int
	stageFD  int

	stdoutBuf *bytebufferpool.ByteBuffer
	stderrBuf *bytebufferpool.ByteBuffer
	// first byte not yet mirrored to the driver's own stdio (nocapture)
	stdoutOff int
	stderrOff int

	stage *stageDecoder

	done     bool
	status   Status
	duration time.Duration
}

func (ot *observedTask) name() string {
	return strings.Join(ot.fullName, "::")
}

// Runner drives a plan to completion, keeping at most the configured
// number of children alive at once. The runner itself is strictly
// single-threaded: one readiness poll drives every state transition.
type Runner struct {
	zerolog.Logger

	cfg    *Config
	report Reporter

	timeout time.Duration
	jobs    int
	runID   string

	poll    *poller
	pending []Task // reversed plan, popped from the end
	live    map[int]*observedTask
	retired []int // scratch: pids ready to retire
	results []CompletedTask
	scratch [scratchSize]byte

	mTasks    map[string]*metrics.Counter
	mDuration *metrics.Histogram
}

// NewRunner creates a runner for cfg reporting to rep.
func NewRunner(cfg *Config, rep Reporter) *Runner {
	jobs := cfg.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	r := &Runner{
		cfg:     cfg,
		report:  rep,
		timeout: cfg.EffectiveTimeout(),
		jobs:    jobs,
		runID:   ulid.Make().String(),
		live:    make(map[int]*observedTask),
	}
	r.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}).With().Str("run", r.runID).Logger()

	r.mTasks = make(map[string]*metrics.Counter)
	for _, label := range []string{"success", "failure", "signaled", "timeout", "skipped"} {
		r.mTasks[label] = metrics.GetOrCreateCounter(
			fmt.Sprintf(`raclette_tasks_total{status=%q}`, label))
	}
	r.mDuration = metrics.GetOrCreateHistogram("raclette_task_duration_seconds")

	return r
}

// Execute runs every task in plan and returns the completed tasks in
// completion order, which is not the plan order. On a supervisor-fatal
// error or an interrupting signal the partial results are returned
// together with the error.
func Execute(cfg *Config, plan []Task, rep Reporter) ([]CompletedTask, error) {
	return NewRunner(cfg, rep).Execute(plan)
}

func (r *Runner) Execute(plan []Task) ([]CompletedTask, error) {
	r.Debug().Int("tasks", len(plan)).Int("jobs", r.jobs).
		Dur("timeout", r.timeout).Msg("starting test run")

	r.report.Init(plan)

	poll, err := newPoller(2 * r.jobs)
	if err != nil {
		return nil, err
	}
	r.poll = poll
	defer poll.close()

	// pop in plan order
	r.pending = make([]Task, len(plan))
	for i := range plan {
		r.pending[len(plan)-1-i] = plan[i]
	}

	for len(r.pending) > 0 || len(r.live) > 0 {
		if err := r.admit(); err != nil {
			return r.results, err
		}

		events, err := r.poll.wait(pollTick)
		if err != nil {
			return r.results, err
		}
		for i := range events {
			token := int(events[i].Fd)
			if token == tokenSignal {
				if r.poll.drainSignals() {
					r.cancel()
					return r.results, ErrInterrupted
				}
				continue
			}
			pid, src := splitToken(token)
			ot := r.live[pid]
			if ot == nil {
				return r.results, fmt.Errorf("%w: pid %d", ErrBadToken, pid)
			}
			r.handleEvent(ot, src, events[i].Events)
		}

		if err := r.reap(); err != nil {
			return r.results, err
		}
		r.retire()
	}

	r.report.Done()
	r.writeMetrics()
	return r.results, nil
}

// admit pops pending tasks until the parallelism bound is reached.
// Skipped tasks complete immediately and never fork.
func (r *Runner) admit() error {
	for len(r.live) < r.jobs && len(r.pending) > 0 {
		task := r.pending[len(r.pending)-1]
		r.pending = r.pending[:len(r.pending)-1]

		r.report.Start(task.Name())

		if reason := task.Opts.SkipReason; reason != "" {
			done := CompletedTask{
				FullName: task.FullName,
				Status:   Skipped(reason),
			}
			r.Debug().Str("task", done.Name()).Str("reason", reason).Msg("skipped")
			r.report.Report(&done)
			r.results = append(r.results, done)
			r.mTasks["skipped"].Inc()
			continue
		}

		rt, err := launch(&task)
		if err != nil {
			return err
		}
		ot := &observedTask{
			fullName:  rt.fullName,
			pid:       rt.pid,
			startedAt: rt.startedAt,
			stdoutFD:  rt.stdoutFD,
			stderrFD:  rt.stderrFD,
			stageFD:   rt.stageFD,
			stdoutBuf: capturePool.Get(),
			stderrBuf: capturePool.Get(),
			stage:     newStageDecoder(),
		}
		if err := r.observe(ot); err != nil {
			return err
		}
		r.live[ot.pid] = ot
		r.Debug().Str("task", ot.name()).Int("pid", ot.pid).Msg("launched")
	}
	return nil
}

func (r *Runner) observe(ot *observedTask) error {
	if err := r.poll.add(ot.stdoutFD, makeToken(ot.pid, srcStdout)); err != nil {
		return err
	}
	if err := r.poll.add(ot.stderrFD, makeToken(ot.pid, srcStderr)); err != nil {
		return err
	}
	return r.poll.add(ot.stageFD, makeToken(ot.pid, srcStage))
}

// handleEvent consumes one readiness event for one pipe of one child.
func (r *Runner) handleEvent(ot *observedTask, src int, events uint32) {
	var fd *int
	switch src {
	case srcStdout:
		fd = &ot.stdoutFD
	case srcStderr:
		fd = &ot.stderrFD
	case srcStage:
		fd = &ot.stageFD
	default:
		return
	}
	if *fd < 0 {
		return
	}

	if events&unix.EPOLLIN != 0 {
		n, err := unix.Read(*fd, r.scratch[:])
		if n > 0 && err == nil {
			r.consume(ot, src, r.scratch[:n])
		}
	}

	if events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		// the peer hung up: drain any bytes still buffered in the kernel
		for {
			n, err := unix.Read(*fd, r.scratch[:])
			if n <= 0 || err != nil {
				break
			}
			r.consume(ot, src, r.scratch[:n])
		}
		if r.cfg.NoCapture {
			switch src {
			case srcStdout:
				flushTail(ot.stdoutBuf.B, &ot.stdoutOff, os.Stdout)
			case srcStderr:
				flushTail(ot.stderrBuf.B, &ot.stderrOff, os.Stderr)
			}
		}
		r.poll.del(*fd)
		unix.Close(*fd)
		*fd = -1
	}
}

// consume appends freshly read bytes to the task's capture, mirroring
// complete lines in nocapture mode and decoding stage frames.
func (r *Runner) consume(ot *observedTask, src int, p []byte) {
	switch src {
	case srcStdout:
		ot.stdoutBuf.Write(p)
		if r.cfg.NoCapture {
			displayLines(ot.stdoutBuf.B, &ot.stdoutOff, os.Stdout)
		}
	case srcStderr:
		ot.stderrBuf.Write(p)
		if r.cfg.NoCapture {
			displayLines(ot.stderrBuf.B, &ot.stderrOff, os.Stderr)
		}
	case srcStage:
		ot.stage.feed(p)
		for {
			frame, err := ot.stage.next()
			if err != nil {
				r.Warn().Err(err).Str("task", ot.name()).
					Msg("corrupt stage stream, further frames dropped")
				break
			}
			if frame == nil {
				break
			}
			r.report.Stage(ot.fullName, frame)
		}
	}
}

// reap resolves the status of every live child: a non-blocking wait
// first, then the timeout check with a kill of the whole process group.
func (r *Runner) reap() error {
	for pid, ot := range r.live {
		if !ot.done {
			elapsed := time.Since(ot.startedAt)

			var ws unix.WaitStatus
			wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
			for err == unix.EINTR {
				wpid, err = unix.Wait4(pid, &ws, unix.WNOHANG, nil)
			}
			if err != nil {
				return fmt.Errorf("%w: pid %d: %v", ErrReap, pid, err)
			}

			switch {
			case wpid == pid && ws.Exited():
				if code := ws.ExitStatus(); code == 0 {
					ot.status = Success()
				} else {
					ot.status = Failure(code)
				}
				ot.done, ot.duration = true, elapsed
			case wpid == pid && ws.Signaled():
				ot.status = Signaled(unix.SignalName(ws.Signal()))
				ot.done, ot.duration = true, elapsed
			case elapsed >= r.timeout:
				// kill the whole group so test descendants die too
				unix.Kill(-pid, unix.SIGKILL)
				ot.status = Timeout()
				ot.done, ot.duration = true, elapsed
				r.Debug().Str("task", ot.name()).Dur("elapsed", elapsed).Msg("timed out")
			}
		}

		if ot.done && ot.stdoutFD < 0 && ot.stderrFD < 0 && ot.stageFD < 0 {
			r.retired = append(r.retired, pid)
		}
	}
	return nil
}

// retire turns every fully drained, reaped child into a CompletedTask.
func (r *Runner) retire() {
	for _, pid := range r.retired {
		ot := r.live[pid]
		delete(r.live, pid)

		done := CompletedTask{
			FullName: ot.fullName,
			Duration: ot.duration,
			Stdout:   append([]byte(nil), ot.stdoutBuf.B...),
			Stderr:   append([]byte(nil), ot.stderrBuf.B...),
			Status:   ot.status,
		}
		capturePool.Put(ot.stdoutBuf)
		capturePool.Put(ot.stderrBuf)
		ot.stage.release()

		r.Debug().Str("task", done.Name()).Stringer("status", done.Status).
			Dur("duration", done.Duration).Msg("retired")
		r.report.Report(&done)
		r.results = append(r.results, done)
		if c := r.mTasks[done.Status.Label()]; c != nil {
			c.Inc()
		}
		r.mDuration.Update(done.Duration.Seconds())
	}
	r.retired = r.retired[:0]
}

// cancel is the signal path: kill every live child's process group.
// No partial result flush happens here.
func (r *Runner) cancel() {
	r.Warn().Msg("interrupted, killing all test processes")
	for pid, ot := range r.live {
		unix.Kill(-pid, unix.SIGKILL)
		if ot.stdoutFD >= 0 {
			unix.Close(ot.stdoutFD)
		}
		if ot.stderrFD >= 0 {
			unix.Close(ot.stderrFD)
		}
		if ot.stageFD >= 0 {
			unix.Close(ot.stageFD)
		}
	}
}

func (r *Runner) writeMetrics() {
	if r.cfg.MetricsPath == "" {
		return
	}
	f, err := os.Create(r.cfg.MetricsPath)
	if err != nil {
		r.Warn().Err(err).Msg("could not write metrics")
		return
	}
	metrics.WritePrometheus(f, true)
	f.Close()
}

// displayLines writes as many complete lines as possible starting at
// *off and advances *off past the last newline.
func displayLines(buf []byte, off *int, w *os.File) {
	for i := len(buf) - 1; i >= *off; i-- {
		if buf[i] == '\n' {
			w.Write(buf[*off : i+1])
			*off = i + 1
			return
		}
	}
}

// flushTail writes the remaining partial line, if any, with a closing
// newline.
func flushTail(buf []byte, off *int, w *os.File) {
	if *off < len(buf) {
		w.Write(buf[*off:])
		w.Write([]byte{'\n'})
		*off = len(buf)
	}
}
