package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/reverba/api/internal/model"
)

// DraftTTL keeps a generated question around long enough for a re-run on
// the next day to still find it.
const DraftTTL = 48 * time.Hour

// unlockScript deletes the lock only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	// Parse redis URL (redis://host:port or redis://host:port/db)
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Client exposes the underlying client so other Redis-backed components can
// share the connection pool.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns nil, nil on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// DraftKey is the key of a generated question for one word on one date.
// Format: "mcq:{user}:{date}:{word}"
func DraftKey(userID, date, wordID string) string {
	return fmt.Sprintf("mcq:%s:%s:%s", userID, date, wordID)
}

func (c *RedisCache) GetMCQDraft(ctx context.Context, userID, date, wordID string) (*model.MCQ, error) {
	b, err := c.Get(ctx, DraftKey(userID, date, wordID))
	if err != nil || b == nil {
		return nil, err
	}
	var mcq model.MCQ
	if err := json.Unmarshal(b, &mcq); err != nil {
		return nil, err
	}
	return &mcq, nil
}

func (c *RedisCache) PutMCQDraft(ctx context.Context, userID, date, wordID string, mcq *model.MCQ) error {
	b, err := json.Marshal(mcq)
	if err != nil {
		return err
	}
	return c.Set(ctx, DraftKey(userID, date, wordID), b, DraftTTL)
}

// TryLock takes key for ttl if nobody holds it. The returned unlock releases
// the lock only while it is still ours, so a run that outlives its ttl cannot
// free a lock a later run has taken.
func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, c.client, []string{"lock:" + key}, token).Err()
	}
	return unlock, true, nil
}
