//go:build linux || darwin || freebsd

package pcap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var errWoken = errors.New("poll woken")

// waker interrupts a blocked poll on a capture descriptor when the capture
// context is done or the handle is closed. The pipe stays readable once
// written, so every later poll returns immediately.
type waker struct {
	r, w int
	once sync.Once
	done chan struct{}
}

func newWaker(ctx context.Context) (*waker, error) {
	var pipefd [2]int
	if err := unix.Pipe(pipefd[:]); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}
	// Make pipe non-blocking
	_ = unix.SetNonblock(pipefd[0], true)
	_ = unix.SetNonblock(pipefd[1], true)

	wk := &waker{r: pipefd[0], w: pipefd[1], done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			wk.wake()
		case <-wk.done:
		}
	}()
	return wk, nil
}

func (wk *waker) wake() {
	// Write any value to wake poll
	_, _ = unix.Write(wk.w, []byte{1})
}

func (wk *waker) close() {
	wk.once.Do(func() {
		close(wk.done)
		_ = unix.Close(wk.r)
		_ = unix.Close(wk.w)
	})
}

// poll waits until fd is readable. It returns context.DeadlineExceeded after
// timeout, and errWoken when the waker fired.
func (wk *waker) poll(fd int, timeout time.Duration) error {
	// pollfd to handle events, like idle timeout or context message
	pfd := []unix.PollFd{
		{
			Fd:     int32(fd),
			Events: unix.POLLIN,
		},
		{
			Fd:     int32(wk.r),
			Events: unix.POLLIN,
		},
	}

	ms := -1
	if timeout > 0 {
		ms = int(timeout.Milliseconds())
	}
	for {
		n, err := unix.Poll(pfd, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("error polling socket: %v", err)
		}
		if n == 0 {
			return context.DeadlineExceeded
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			return errWoken
		}
		return nil
	}
}
