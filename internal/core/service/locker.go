package service

import (
	"context"
	"sync"
)

// LocalLocker is an in-process keyed mutex. Keys are dropped once nobody holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*lockSlot)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.drop(key, slot)
		})
	}, nil
}

func (l *LocalLocker) drop(key string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

func loanLockKey(loanID string) string {
	return "loan:" + loanID
}

func borrowerLockKey(borrowerID string) string {
	return "borrower:" + borrowerID
}
