package consent

import (
	"fmt"
	"os"
	"sync"
	"syscall"
)

// ExclusiveFileLock is the capability to serialize ledger appends. The two
// implementations make the degraded mode an explicit configuration rather
// than a silent fallback: CrossProcessLock excludes other processes,
// InProcessLock only excludes goroutines in this process.
type ExclusiveFileLock interface {
	Lock() error
	Unlock() error

	// CrossProcess reports whether the lock excludes other processes.
	CrossProcess() bool
}

// CrossProcessLock holds an exclusive advisory flock on a sidecar lock file.
type CrossProcessLock struct {
	path string
	file *os.File
}

// NewCrossProcessLock returns a lock backed by the given sidecar path
// (conventionally "<ledger>.lock").
func NewCrossProcessLock(path string) *CrossProcessLock {
	return &CrossProcessLock{path: path}
}

func (l *CrossProcessLock) Lock() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return fmt.Errorf("lock ledger: %w", err)
	}
	l.file = f
	return nil
}

func (l *CrossProcessLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("unlock ledger: %w", err)
	}
	return nil
}

func (l *CrossProcessLock) CrossProcess() bool { return true }

// InProcessLock serializes appends within this process only. It is the
// degraded mode for platforms or filesystems without advisory locking and is
// rejected when strict locking is configured.
type InProcessLock struct {
	mu sync.Mutex
}

func (l *InProcessLock) Lock() error {
	l.mu.Lock()
	return nil
}

func (l *InProcessLock) Unlock() error {
	l.mu.Unlock()
	return nil
}

func (l *InProcessLock) CrossProcess() bool { return false }
