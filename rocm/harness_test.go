package rocm

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m000z0rz/rocmtest/gpulock"
)

type fakeSession struct {
	onExit func()
	exits  int
}

func (s *fakeSession) Exit() error {
	s.exits++
	if s.onExit != nil {
		s.onExit()
	}
	return nil
}

func lockPathFor(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), gpulock.DefaultName)
}

func requireLockFree(t *testing.T, path string) {
	t.Helper()
	release, ok, err := gpulock.New(path, "checker").TryAcquire()
	require.NoError(t, err)
	require.True(t, ok, "lock should be free after WithGPULock returns")
	require.NoError(t, release())
}

func TestWithGPULockNormalReturn(t *testing.T) {
	path := lockPathFor(t)
	h := New(Config{LockPath: path})

	var events []string
	session := &fakeSession{onExit: func() { events = append(events, "exit") }}
	h.session = session

	err := h.WithGPULock(func() error {
		events = append(events, "body")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"body", "exit"}, events, "session teardown runs after the body")
	requireLockFree(t, path)
}

func TestWithGPULockErrorReturn(t *testing.T) {
	path := lockPathFor(t)
	h := New(Config{LockPath: path})

	session := &fakeSession{}
	h.session = session

	failed := errors.New("test failed early")
	err := h.WithGPULock(func() error { return failed })
	assert.ErrorIs(t, err, failed)

	assert.Equal(t, 1, session.exits, "session teardown must run on an error return")
	requireLockFree(t, path)
}

func TestWithGPULockPanic(t *testing.T) {
	path := lockPathFor(t)
	h := New(Config{LockPath: path})

	session := &fakeSession{}
	h.session = session

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_ = h.WithGPULock(func() error { panic("abnormal exit") })
	}()

	require.NotNil(t, recovered, "the panic must propagate to the caller")
	assert.Equal(t, 1, session.exits, "session teardown must run even on a panic")
	requireLockFree(t, path)
}

func TestWithGPULockNoActiveSession(t *testing.T) {
	path := lockPathFor(t)
	h := New(Config{LockPath: path})

	// no session registered: teardown must be a silent no-op
	err := h.WithGPULock(func() error { return nil })
	require.NoError(t, err)
	requireLockFree(t, path)
}

func TestWithGPULockHoldsLockDuringBody(t *testing.T) {
	path := lockPathFor(t)
	h := New(Config{LockPath: path, Worker: "worker-1"})

	err := h.WithGPULock(func() error {
		_, ok, err := gpulock.New(path, "intruder").TryAcquire()
		require.NoError(t, err)
		assert.False(t, ok, "the lock must be exclusive while the body runs")

		info, err := gpulock.ReadInfo(path)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, "worker-1", info.Holder)
		return nil
	})
	require.NoError(t, err)
}

func TestExitDebuggerIdempotent(t *testing.T) {
	h := New(Config{LockPath: lockPathFor(t)})

	session := &fakeSession{}
	h.session = session

	h.ExitDebugger()
	h.ExitDebugger()

	assert.Equal(t, 1, session.exits, "a second teardown finds no session")
}
