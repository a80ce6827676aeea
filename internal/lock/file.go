// Package lock keeps two ingestion runs from writing at the same time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/richroberts-prog/air-demand/internal/config"
	"github.com/richroberts-prog/air-demand/internal/model"
)

// Locker is a model.Locker that owns a connection or file handle.
type Locker interface {
	model.Locker
	Close() error
}

// Open returns the locker selected by cfg.
func Open(ctx context.Context, cfg config.LockConfig, logger *slog.Logger) (Locker, error) {
	switch cfg.Backend {
	case "file":
		return NewFileLocker(cfg.Path, cfg.TTL, logger), nil
	case "redis":
		return NewRedisLocker(ctx, cfg.RedisURL, cfg.Key, cfg.TTL, logger)
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

// FileLocker holds an exclusive lock file. A file older than the TTL is
// treated as left behind by a crashed run and taken over. While held, the
// file's mtime is refreshed so long runs are not mistaken for stale ones.
type FileLocker struct {
	path   string
	ttl    time.Duration
	logger *slog.Logger
}

var _ model.Locker = (*FileLocker)(nil)

func NewFileLocker(path string, ttl time.Duration, logger *slog.Logger) *FileLocker {
	return &FileLocker{path: path, ttl: ttl, logger: logger}
}

// Acquire creates the lock file or returns model.ErrRunInProgress.
func (l *FileLocker) Acquire(ctx context.Context) (func(), error) {
	for attempt := 0; attempt < 3; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, `{"pid":%d,"time":%d}`+"\n", os.Getpid(), time.Now().Unix())
			f.Close()
			return l.hold(), nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("creating lock file %s: %w", l.path, err)
		}

		fi, err := os.Stat(l.path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("checking lock file %s: %w", l.path, err)
		}
		age := time.Since(fi.ModTime())
		if age < l.ttl {
			return nil, fmt.Errorf("lock file %s held for %s: %w", l.path, age.Round(time.Second), model.ErrRunInProgress)
		}
		l.logger.Warn("taking over stale lock file", "path", l.path, "age", age.Round(time.Second))
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("removing stale lock file %s: %w", l.path, err)
		}
	}
	return nil, fmt.Errorf("lock file %s: %w", l.path, model.ErrRunInProgress)
}

// hold starts the heartbeat and returns the release func.
func (l *FileLocker) hold() func() {
	done := make(chan struct{})
	go func() {
		interval := max(l.ttl/3, time.Second)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-t.C:
				_ = os.Chtimes(l.path, now, now)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				l.logger.Error("failed to remove lock file", "path", l.path, "error", err)
			}
		})
	}
}

// Close is a no-op; a held lock is released through its release func.
func (l *FileLocker) Close() error { return nil }
