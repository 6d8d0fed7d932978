//go:build unix

// Package gpulock serializes access to a shared GPU across parallel
// test workers. Workers may be separate processes, so exclusion is a
// flock(2) advisory lock on a well-known file rather than anything
// in-process. The lock dies with its holder; there is no staleness to
// clean up.
package gpulock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// DefaultName is the lock file name shared by every worker in a test
// run. Workers must agree on the full path for exclusion to mean
// anything.
const DefaultName = "gpu-parallel.lock"

// Info identifies the current lock holder. It is written into the lock
// file while held so humans (and the doctor) can see who owns the GPU;
// it carries no locking semantics of its own.
type Info struct {
	Holder     string    `json:"holder"`
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is a handle on the shared lock file. The zero value is not
// usable; create one with New.
type Lock struct {
	path   string
	holder string
	file   *os.File
}

// New returns a lock on path. holder is a human-readable label written
// into the lock file while the lock is held; empty is fine.
func New(path, holder string) *Lock {
	return &Lock{path: path, holder: holder}
}

// DefaultPath is the lock file location used when the caller does not
// configure one.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), DefaultName)
}

// Acquire blocks until the lock is owned and returns a release func.
// Release is idempotent. Ordering among blocked waiters is whatever
// flock provides; no fairness is guaranteed. A blocked Acquire cannot
// be cancelled.
func (l *Lock) Acquire() (func() error, error) {
	return l.acquire(unix.LOCK_EX)
}

// TryAcquire attempts the lock without blocking. ok reports whether the
// lock was obtained; when it is, release must be called.
func (l *Lock) TryAcquire() (release func() error, ok bool, err error) {
	release, err = l.acquire(unix.LOCK_EX | unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return release, true, nil
}

func (l *Lock) acquire(how int) (func() error, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", l.path, err)
	}

	if err := flock(f, how); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, err
		}
		return nil, fmt.Errorf("flock %s: %w", l.path, err)
	}

	l.file = f
	l.writeInfo()

	var once sync.Once
	release := func() error {
		var err error
		once.Do(func() {
			_ = f.Truncate(0)
			err = flock(f, unix.LOCK_UN)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			l.file = nil
		})
		return err
	}
	return release, nil
}

// writeInfo records the holder in the lock file. Best effort: failing
// to write it never fails the acquisition.
func (l *Lock) writeInfo() {
	host, _ := os.Hostname()
	info := Info{
		Holder:     l.holder,
		PID:        os.Getpid(),
		Host:       host,
		Token:      uuid.New().String(),
		AcquiredAt: time.Now().UTC(),
	}

	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	_ = l.file.Truncate(0)
	_, _ = l.file.WriteAt(data, 0)
	_ = l.file.Sync()
}

// ReadInfo reports who holds the lock at path, if anyone. Returns nil
// with no error when the file is absent or empty (lock not held, or
// held by a writer that raced our read).
func ReadInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("malformed lock info in %s: %w", path, err)
	}
	return &info, nil
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}
