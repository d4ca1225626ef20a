package core

import "errors"

var (
	ErrPoll        = errors.New("readiness poll failed")
	ErrRegister    = errors.New("could not register pipe with the poller")
	ErrLaunch      = errors.New("could not launch test process")
	ErrReap        = errors.New("could not reap test process")
	ErrBadToken    = errors.New("poll event for a process that is not observed")
	ErrInterrupted = errors.New("test run interrupted by a signal")
)
