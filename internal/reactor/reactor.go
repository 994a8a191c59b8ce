//go:build linux

// Package reactor wraps Linux epoll as a readiness notification facility.
//
// The reactor owns one epoll instance plus an eventfd used to interrupt a
// blocking Wait from another goroutine (shutdown). The wake descriptor is
// filtered out of the results, so callers only ever see their own fds.
//
// One-shot contract:
// Client sockets are registered with EventOneShot. After an event is delivered
// for such an fd the kernel disarms it, and the caller must Modify it before
// another event can be delivered. This is what guarantees at most one task per
// connection at a time.
package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Event is a bitmask of epoll interest and readiness flags.
type Event uint32

const (
	EventIn      Event = unix.EPOLLIN
	EventOut     Event = unix.EPOLLOUT
	EventRDHup   Event = unix.EPOLLRDHUP
	EventHup     Event = unix.EPOLLHUP
	EventErr     Event = unix.EPOLLERR
	EventOneShot Event = unix.EPOLLONESHOT
	EventET      Event = unix.EPOLLET
)

// DefaultMaxEvents is the batch size used when New is given maxEvents <= 0.
const DefaultMaxEvents = 1024

// Has reports whether any bit of mask is set in e.
func (e Event) Has(mask Event) bool {
	return e&mask != 0
}

func (e Event) String() string {
	names := []struct {
		bit  Event
		name string
	}{
		{EventIn, "IN"}, {EventOut, "OUT"}, {EventRDHup, "RDHUP"}, {EventHup, "HUP"},
		{EventErr, "ERR"}, {EventOneShot, "ONESHOT"}, {EventET, "ET"},
	}
	s := ""
	for _, n := range names {
		if e.Has(n.bit) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return fmt.Sprintf("0x%x", uint32(e))
	}
	return s
}

// Reactor is an epoll instance with a reusable event array.
//
// Thread safety:
// Add, Modify, Delete and Wake may be called from any goroutine. Wait,
// EventFd and EventMask must only be called from the reactor goroutine.
type Reactor struct {
	epfd   int
	wakeFd int
	events []unix.EpollEvent
}

// New creates an epoll instance with room for maxEvents results per Wait.
func New(maxEvents int) (*Reactor, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	r := &Reactor{
		epfd:   epfd,
		wakeFd: wakeFd,
		events: make([]unix.EpollEvent, maxEvents),
	}
	if err := r.Add(wakeFd, EventIn); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, err
	}
	return r, nil
}

// Add registers fd with the given interest mask.
func (r *Reactor) Add(fd int, events Event) error {
	return r.ctl(unix.EPOLL_CTL_ADD, fd, events)
}

// Modify replaces the interest mask of a registered fd. For one-shot fds this
// re-arms notification.
func (r *Reactor) Modify(fd int, events Event) error {
	return r.ctl(unix.EPOLL_CTL_MOD, fd, events)
}

// Delete unregisters fd.
func (r *Reactor) Delete(fd int) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl(DEL, %d): %w", fd, err)
	}
	return nil
}

func (r *Reactor) ctl(op, fd int, events Event) error {
	ev := unix.EpollEvent{Events: uint32(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl(%d, %d, %s): %w", op, fd, events, err)
	}
	return nil
}

// Wait blocks until at least one registered fd is ready, the timeout expires,
// or Wake is called. timeoutMs < 0 waits indefinitely.
//
// Returns the number of ready events, retrievable with EventFd and EventMask.
// An interrupted wait (EINTR) and a wake-up both report zero events.
func (r *Reactor) Wait(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(r.epfd, r.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		if int(r.events[i].Fd) != r.wakeFd {
			continue
		}
		r.drainWake()
		n--
		r.events[i] = r.events[n]
		break
	}
	return n, nil
}

// EventFd returns the fd of the i-th ready event from the last Wait.
func (r *Reactor) EventFd(i int) int {
	return int(r.events[i].Fd)
}

// EventMask returns the readiness mask of the i-th ready event from the last Wait.
func (r *Reactor) EventMask(i int) Event {
	return Event(r.events[i].Events)
}

// Wake interrupts a concurrent or subsequent Wait.
func (r *Reactor) Wake() error {
	var one = [8]byte{1}
	if _, err := unix.Write(r.wakeFd, one[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (r *Reactor) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(r.wakeFd, buf[:])
}

// Close releases the epoll instance and the wake descriptor.
func (r *Reactor) Close() error {
	werr := unix.Close(r.wakeFd)
	if err := unix.Close(r.epfd); err != nil {
		return fmt.Errorf("close epoll: %w", err)
	}
	if werr != nil {
		return fmt.Errorf("close eventfd: %w", werr)
	}
	return nil
}
