package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/fieldops/auth-service/pkg/util"
)

const rateLimitPrefix = "rl:"

// CredentialRateLimit limits attempts per submitted email or phone, falling back to the client IP.
// With no Redis client, or on cache errors, requests pass through.
func CredentialRateLimit(cache redis.UniversalClient, scope string, maxPerMin int, logger *zap.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			Email string `json:"email"`
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		identifier := strings.ToLower(strings.TrimSpace(req.Email))
		if identifier == "" {
			identifier = strings.TrimSpace(req.Phone)
		}
		if identifier == "" {
			identifier = c.IP()
		}

		ctx := c.UserContext()
		key := rateLimitPrefix + scope + ":" + identifier
		var incr *redis.IntCmd
		_, err := cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, time.Minute)
			return nil
		})
		if err != nil {
			logger.Warn("rate limit check failed", zap.String("scope", scope), zap.Error(err))
			return c.Next()
		}
		if incr.Val() > int64(maxPerMin) {
			return apperrors.NewTooManyRequests("too many attempts, try again later")
		}
		return c.Next()
	}
}
