//go:build unix

package internal

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/lychee-technology/schemata"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// fileLock is an exclusive advisory flock held on a sidecar file. Each
// acquisition opens its own descriptor, so two handles in one process
// exclude each other just like two processes do.
type fileLock struct {
	f    *os.File
	path string
}

// acquireFileLock polls for an exclusive lock until timeout elapses or ctx
// ends, and then fails with a busy error.
func acquireFileLock(ctx context.Context, path string, timeout, poll time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		zap.S().Errorw("failed to open lock file", "path", path, "error", err)
		return nil, schemata.NewStorageError("open lock file", err)
	}

	start := time.Now()
	deadline := start.Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{f: f, path: path}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			e := schemata.NewStorageError("lock storage file", err)
			e.Code = schemata.ErrCodeLockFailed
			return nil, e
		}
		if !time.Now().Before(deadline) {
			f.Close()
			zap.S().Warnw("storage lock wait timed out", "path", path, "waited", time.Since(start))
			return nil, schemata.NewBusyError(time.Since(start))
		}

		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			f.Close()
			zap.S().Infow("storage lock wait cancelled", "path", path, "waited", time.Since(start))
			return nil, schemata.NewBusyError(time.Since(start)).WithCause(ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *fileLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
