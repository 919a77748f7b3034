package service

import (
	"context"
	"strconv"
	"time"

	"github.com/r3hensler/base-client-server/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const rateLimitWindow = time.Minute

// RateLimiter throttles login and register attempts with Redis fixed-window
// counters: INCR plus an EXPIRE set on the first hit of each window. Keys are
// per client IP and, for login, additionally per target email so one address
// cannot be brute-forced from many IPs faster than the per-email budget.
//
// A nil RateLimiter allows everything; local development runs without Redis.
type RateLimiter struct {
	redis       *redis.Client
	loginLimit  int64
	signupLimit int64
	log         zerolog.Logger
}

func NewRateLimiter(cfg config.RedisConfig, logger zerolog.Logger) (*RateLimiter, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	loginLimit, err := strconv.ParseInt(cfg.LoginLimit, 10, 64)
	if err != nil || loginLimit < 1 {
		return nil, ErrMisconfigured
	}
	signupLimit, err := strconv.ParseInt(cfg.SignupLimit, 10, 64)
	if err != nil || signupLimit < 1 {
		return nil, ErrMisconfigured
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})

	return &RateLimiter{
		redis:       client,
		loginLimit:  loginLimit,
		signupLimit: signupLimit,
		log:         logger.With().Str("component", "ratelimit").Logger(),
	}, nil
}

// AllowLogin returns ErrRateLimited once either the per-IP or the per-email
// login budget for the current window is spent.
func (l *RateLimiter) AllowLogin(ctx context.Context, ip, email string) error {
	if l == nil {
		return nil
	}
	if err := l.enforce(ctx, "rl:login:ip:"+ip, l.loginLimit); err != nil {
		return err
	}
	return l.enforce(ctx, "rl:login:email:"+email, l.loginLimit)
}

// AllowRegister returns ErrRateLimited once the per-IP registration budget
// for the current window is spent.
func (l *RateLimiter) AllowRegister(ctx context.Context, ip string) error {
	if l == nil {
		return nil
	}
	return l.enforce(ctx, "rl:register:ip:"+ip, l.signupLimit)
}

func (l *RateLimiter) enforce(ctx context.Context, key string, limit int64) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		// Fail open: an unreachable Redis must not lock every user out.
		l.log.Warn().Err(err).Msg("redis unavailable, skipping rate limit")
		return nil
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, rateLimitWindow).Err(); err != nil {
			l.log.Warn().Err(err).Msg("failed to set rate limit window")
		}
	}
	if count > limit {
		return ErrRateLimited
	}
	return nil
}
