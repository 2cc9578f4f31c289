// Package limiter implements Redis counters for per-user request rates and
// daily quotas.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Actions with a rate limit.
const (
	ActionEvaluate = "evaluate"
	ActionAddWord  = "add_word"
)

type ActionConfig struct {
	Limit  int64
	Window time.Duration
}

var DefaultLimits = map[string]ActionConfig{
	ActionEvaluate: {Limit: 20, Window: time.Minute},
}

// dailyTTL outlives the longest calendar day in any time zone.
const dailyTTL = 48 * time.Hour

type Limiter struct {
	client *redis.Client
	limits map[string]ActionConfig
}

type CheckResult struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
	ResetAt   int64 `json:"resetAt"`
	Limit     int64 `json:"limit"`
}

// New creates a limiter. limits overrides DefaultLimits per action.
func New(client *redis.Client, limits map[string]ActionConfig) *Limiter {
	merged := make(map[string]ActionConfig, len(DefaultLimits)+len(limits))
	for k, v := range DefaultLimits {
		merged[k] = v
	}
	for k, v := range limits {
		merged[k] = v
	}
	return &Limiter{client: client, limits: merged}
}

func (l *Limiter) incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	// The window starts with the first request.
	if count == 1 {
		if err := l.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, 0, err
		}
	}
	remaining, err := l.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	return count, remaining, nil
}

func result(count, limit int64, ttl time.Duration) *CheckResult {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &CheckResult{
		Allowed:   count <= limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl).Unix(),
		Limit:     limit,
	}
}

// Check counts one request by clientID against the action's fixed window.
func (l *Limiter) Check(ctx context.Context, clientID, action string) (*CheckResult, error) {
	config, ok := l.limits[action]
	if !ok {
		config = ActionConfig{Limit: 100, Window: time.Minute}
	}

	key := fmt.Sprintf("rate:%s:%s", clientID, action)
	count, ttl, err := l.incr(ctx, key, config.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to increment counter: %w", err)
	}
	return result(count, config.Limit, ttl), nil
}

func dailyKey(userID, action, date string) string {
	return fmt.Sprintf("quota:%s:%s:%s", action, userID, date)
}

// ConsumeDaily counts one use of action by userID on date against limit.
func (l *Limiter) ConsumeDaily(ctx context.Context, userID, action, date string, limit int64) (*CheckResult, error) {
	count, ttl, err := l.incr(ctx, dailyKey(userID, action, date), dailyTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to increment quota: %w", err)
	}
	res := result(count, limit, ttl)
	if !res.Allowed {
		// Denied attempts are not counted.
		_ = l.client.Decr(ctx, dailyKey(userID, action, date)).Err()
	}
	return res, nil
}

// ReleaseDaily returns one use consumed by ConsumeDaily, for when the action
// failed after the quota was taken.
func (l *Limiter) ReleaseDaily(ctx context.Context, userID, action, date string) error {
	return l.client.Decr(ctx, dailyKey(userID, action, date)).Err()
}

// DailyUsage returns how many uses of action userID has on date.
func (l *Limiter) DailyUsage(ctx context.Context, userID, action, date string) (int64, error) {
	n, err := l.client.Get(ctx, dailyKey(userID, action, date)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
