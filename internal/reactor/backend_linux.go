//go:build linux

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollBackend is the linux readiness backend. It is written directly
// against golang.org/x/sys/unix's public epoll entry points; no example in
// the broader retrieval pack implements an epoll loop, so this file follows
// the well-known EpollCreate1/EpollCtl/EpollWait sequence rather than a
// specific reference implementation (see DESIGN.md).
type epollBackend struct {
	mu   sync.Mutex
	fd   int
	want map[int]uint32
}

func newBackend() (Backend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{fd: fd, want: make(map[int]uint32)}, nil
}

func eventMask(wantRead, wantWrite bool) uint32 {
	var m uint32
	if wantRead {
		m |= unix.EPOLLIN
	}
	if wantWrite {
		m |= unix.EPOLLOUT
	}
	return m
}

func (b *epollBackend) Register(fd int, wantRead, wantWrite bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	mask := eventMask(wantRead, wantWrite)
	ev := &unix.EpollEvent{Events: mask, Fd: int32(fd)}

	op := unix.EPOLL_CTL_ADD
	if _, exists := b.want[fd]; exists {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(b.fd, op, fd, ev); err != nil {
		return err
	}
	b.want[fd] = mask
	return nil
}

func (b *epollBackend) Unregister(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.want[fd]; !exists {
		return nil
	}
	delete(b.want, fd)
	return unix.EpollCtl(b.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (b *epollBackend) Wait(msec int) ([]Event, error) {
	raw := make([]unix.EpollEvent, 256)

	n, err := unix.EpollWait(b.fd, raw, msec)
	for err == unix.EINTR {
		n, err = unix.EpollWait(b.fd, raw, msec)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		var kind EventKind
		e := raw[i].Events
		if e&(unix.EPOLLIN|unix.EPOLLHUP) != 0 {
			kind |= EventReadable
		}
		if e&unix.EPOLLOUT != 0 {
			kind |= EventWritable
		}
		if e&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			kind |= EventError
		}
		out = append(out, Event{FD: int(raw[i].Fd), Kind: kind})
	}
	return out, nil
}

func (b *epollBackend) Close() error {
	return unix.Close(b.fd)
}
