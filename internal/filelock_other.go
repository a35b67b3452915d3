//go:build !unix

package internal

import (
	"context"
	"sync"
	"time"

	"github.com/lychee-technology/schemata"
	"go.uber.org/zap"
)

// Without flock the lock only serializes handles within this process.
var (
	processLocksMu sync.Mutex
	processLocks   = map[string]*sync.Mutex{}
)

type fileLock struct {
	mu   *sync.Mutex
	path string
}

func acquireFileLock(ctx context.Context, path string, timeout, poll time.Duration) (*fileLock, error) {
	processLocksMu.Lock()
	mu, ok := processLocks[path]
	if !ok {
		mu = &sync.Mutex{}
		processLocks[path] = mu
	}
	processLocksMu.Unlock()

	start := time.Now()
	deadline := start.Add(timeout)
	for {
		if mu.TryLock() {
			return &fileLock{mu: mu, path: path}, nil
		}
		if !time.Now().Before(deadline) {
			zap.S().Warnw("storage lock wait timed out", "path", path, "waited", time.Since(start))
			return nil, schemata.NewBusyError(time.Since(start))
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, schemata.NewBusyError(time.Since(start)).WithCause(ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *fileLock) release() error {
	if l == nil || l.mu == nil {
		return nil
	}
	l.mu.Unlock()
	l.mu = nil
	return nil
}
