//go:build linux

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newReactor(t *testing.T) *Reactor {
	t.Helper()
	r, err := New(16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestWaitTimesOutWithNoEvents(t *testing.T) {
	r := newReactor(t)

	start := time.Now()
	n, err := r.Wait(20)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestReadableEvent(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)

	require.NoError(t, r.Add(a, EventIn|EventRDHup))
	_, err := unix.Write(b, []byte("ping"))
	require.NoError(t, err)

	n, err := r.Wait(1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, a, r.EventFd(0))
	assert.True(t, r.EventMask(0).Has(EventIn))
}

func TestOneShotRequiresRearm(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)

	require.NoError(t, r.Add(a, EventIn|EventOneShot))
	_, err := unix.Write(b, []byte("x"))
	require.NoError(t, err)

	n, err := r.Wait(1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Data is still unread, but the fd is disarmed until modified.
	n, err = r.Wait(20)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, r.Modify(a, EventIn|EventOneShot))
	n, err = r.Wait(1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPeerHangup(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)

	require.NoError(t, r.Add(a, EventIn|EventRDHup|EventOneShot))
	require.NoError(t, unix.Shutdown(b, unix.SHUT_WR))

	n, err := r.Wait(1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.True(t, r.EventMask(0).Has(EventRDHup))
}

func TestDelete(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)

	require.NoError(t, r.Add(a, EventIn))
	require.NoError(t, r.Delete(a))
	_, err := unix.Write(b, []byte("x"))
	require.NoError(t, err)

	n, err := r.Wait(20)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Error(t, r.Delete(a), "deleting an unregistered fd fails")
}

func TestWakeInterruptsWait(t *testing.T) {
	r := newReactor(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = r.Wake()
	}()

	start := time.Now()
	n, err := r.Wait(-1)
	require.NoError(t, err)
	assert.Zero(t, n, "wake fd must not be reported")
	assert.Less(t, time.Since(start), 5*time.Second)

	// The wake-up was drained.
	n, err = r.Wait(10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "IN|ONESHOT", (EventIn | EventOneShot).String())
	assert.Equal(t, "0x0", Event(0).String())
}
