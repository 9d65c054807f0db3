package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// verifyScript compares the stored digest and deletes the key in one atomic step.
var verifyScript = redis.NewScript(`
local stored = redis.call("GET", KEYS[1])
if stored and stored == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

// RedisLedger keeps codes in Redis with a TTL so that every instance sees the same state.
type RedisLedger struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	newCode func() (string, error)
}

// NewRedisLedger builds a Redis-backed ledger. An empty prefix defaults to "otp:".
func NewRedisLedger(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = "otp:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLedger{client: client, prefix: prefix, ttl: ttl, newCode: GenerateCode}
}

func (l *RedisLedger) key(phone string) string { return l.prefix + phone }

// Issue stores a fresh code for phone; Redis expires it after the ledger TTL.
func (l *RedisLedger) Issue(ctx context.Context, phone string) (string, error) {
	if l.client == nil {
		return "", errors.New("otp: redis client not configured")
	}
	code, err := l.newCode()
	if err != nil {
		return "", err
	}
	if err := l.client.Set(ctx, l.key(phone), digest(code), l.ttl).Err(); err != nil {
		return "", fmt.Errorf("otp: store code: %w", err)
	}
	return code, nil
}

// Verify redeems code for phone.
func (l *RedisLedger) Verify(ctx context.Context, phone, code string) (bool, error) {
	if l.client == nil {
		return false, errors.New("otp: redis client not configured")
	}
	if !wellFormed(code) {
		return false, nil
	}
	res, err := verifyScript.Run(ctx, l.client, []string{l.key(phone)}, digest(code)).Int()
	if err != nil {
		return false, fmt.Errorf("otp: verify code: %w", err)
	}
	return res == 1, nil
}
