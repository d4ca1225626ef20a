//go:build linux

package core

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"
)

// poller multiplexes readiness over all child pipes plus a self-pipe
// fed by the process signal handler. Tokens ride in the event data.
type poller struct {
	epfd   int
	events []unix.EpollEvent

	sigR, sigW int
	sigch      chan os.Signal
}

func newPoller(capacity int) (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create: %w", err)
	}

	p := &poller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, max(capacity, 8)),
		sigR:   -1,
		sigW:   -1,
	}

	// async-signal source: signal.Notify feeds a non-blocking self-pipe
	// registered under the distinguished token
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		p.close()
		return nil, fmt.Errorf("signal pipe: %w", err)
	}
	p.sigR, p.sigW = fds[0], fds[1]
	if err := p.add(p.sigR, tokenSignal); err != nil {
		p.close()
		return nil, err
	}

	p.sigch = make(chan os.Signal, 1)
	signal.Notify(p.sigch, unix.SIGINT, unix.SIGTERM)
	go func() {
		for range p.sigch {
			unix.Write(p.sigW, []byte{1})
		}
	}()

	return p, nil
}

func (p *poller) add(fd, token int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLRDHUP,
		Fd:     int32(token),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrRegister, err)
	}
	return nil
}

func (p *poller) del(fd int) {
	unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks for up to timeout and returns the ready events. An
// interrupted wait returns an empty batch.
func (p *poller) wait(timeout time.Duration) ([]unix.EpollEvent, error) {
	n, err := unix.EpollWait(p.epfd, p.events, int(timeout.Milliseconds()))
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoll, err)
	}
	return p.events[:n], nil
}

// drainSignals empties the self-pipe and reports whether any
// termination signal was delivered.
func (p *poller) drainSignals() bool {
	var buf [16]byte
	got := false
	for {
		n, err := unix.Read(p.sigR, buf[:])
		if n > 0 {
			got = true
		}
		if err != nil || n <= 0 {
			return got
		}
	}
}

func (p *poller) close() {
	if p.sigch != nil {
		signal.Stop(p.sigch)
		close(p.sigch)
	}
	if p.sigR >= 0 {
		unix.Close(p.sigR)
	}
	if p.sigW >= 0 {
		unix.Close(p.sigW)
	}
	unix.Close(p.epfd)
}
