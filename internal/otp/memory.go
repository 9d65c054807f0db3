package otp

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

type memoryEntry struct {
	digest    string
	expiresAt time.Time
	timer     *time.Timer
}

// MemoryLedger keeps codes in process memory. It suits single-instance deployments and tests.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
	newCode func() (string, error)
}

// NewMemoryLedger builds an in-memory ledger with the given code lifetime.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryLedger{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		newCode: GenerateCode,
	}
}

// Issue stores a fresh code for phone and schedules its cleanup at expiry.
func (l *MemoryLedger) Issue(_ context.Context, phone string) (string, error) {
	code, err := l.newCode()
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.entries[phone]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	entry := &memoryEntry{digest: digest(code), expiresAt: l.now().Add(l.ttl)}
	entry.timer = time.AfterFunc(l.ttl, func() { l.expire(phone, entry) })
	l.entries[phone] = entry
	return code, nil
}

// Verify checks and deletes under one lock so concurrent callers cannot both succeed.
func (l *MemoryLedger) Verify(_ context.Context, phone, code string) (bool, error) {
	if !wellFormed(code) {
		return false, nil
	}
	supplied := digest(code)

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[phone]
	if !ok {
		return false, nil
	}
	if !l.now().Before(entry.expiresAt) {
		l.remove(phone, entry)
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(entry.digest), []byte(supplied)) != 1 {
		return false, nil
	}
	l.remove(phone, entry)
	return true, nil
}

// Len returns the number of live entries.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLedger) expire(phone string, entry *memoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries[phone] == entry {
		delete(l.entries, phone)
	}
}

// remove must be called with mu held.
func (l *MemoryLedger) remove(phone string, entry *memoryEntry) {
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(l.entries, phone)
}
