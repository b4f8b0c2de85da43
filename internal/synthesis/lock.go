package synthesis

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const (
	LockNone  = "none"
	LockLocal = "local"
	LockRedis = "redis"
)

// Locker is a non-blocking per-key advisory lock.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// ParseLockMode validates DNA_SYNTHESIS_LOCK. Empty means none.
func ParseLockMode(s string) (string, error) {
	switch mode := strings.ToLower(strings.TrimSpace(s)); mode {
	case "", LockNone:
		return LockNone, nil
	case LockLocal, LockRedis:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid DNA_SYNTHESIS_LOCK %q (want none|local|redis)", s)
	}
}

type noopLocker struct{}

// NoLock always acquires. Concurrent runs on one subtopic race and the last
// replace wins.
func NoLock() Locker { return noopLocker{} }

func (noopLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	return func() {}, true, nil
}

// LocalLocker serializes synthesis per subtopic within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]struct{}{}}
}

func (l *LocalLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
