package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// replaceScript atomically drops the subtree at ARGV[1], the ancestor leaves
// listed after ARGV[2], and writes the path/value pairs that follow.
var replaceScript = redis.NewScript(`
local leaves, paths = KEYS[1], KEYS[2]
local path = ARGV[1]
local stale = redis.call('ZRANGEBYLEX', paths, '[' .. path .. '/', '(' .. path .. '0')
table.insert(stale, path)
local nanc = tonumber(ARGV[2])
for i = 1, nanc do
  table.insert(stale, ARGV[2 + i])
end
for i = 1, #stale, 500 do
  local chunk = {unpack(stale, i, math.min(i + 499, #stale))}
  redis.call('HDEL', leaves, unpack(chunk))
  redis.call('ZREM', paths, unpack(chunk))
end
for i = 3 + nanc, #ARGV, 2 do
  redis.call('HSET', leaves, ARGV[i], ARGV[i + 1])
  redis.call('ZADD', paths, 0, ARGV[i])
end
return #stale
`)

// RedisStore keeps leaves in a hash and their paths in a sorted set so a
// subtree is one ZRANGEBYLEX away.
type RedisStore struct {
	client    *redis.Client
	leavesKey string
	pathsKey  string
}

// NewRedisClient parses redisURL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// NewRedisStore creates a store on an existing client. All keys are
// prefixed with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		leavesKey: prefix + ":leaves",
		pathsKey:  prefix + ":paths",
	}
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get returns the subtree at path.
func (s *RedisStore) Get(ctx context.Context, path string) (any, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	lo, hi := subtreeBounds(path)
	members, err := s.client.ZRangeByLex(ctx, s.pathsKey, &redis.ZRangeBy{
		Min: "[" + lo,
		Max: "(" + hi,
	}).Result()
	if err != nil {
		return nil, err
	}
	members = append(members, path)

	values, err := s.client.HMGet(ctx, s.leavesKey, members...).Result()
	if err != nil {
		return nil, err
	}

	found := make(map[string][]byte, len(values))
	for i, v := range values {
		// A leaf removed between the two reads comes back nil.
		if str, ok := v.(string); ok {
			found[members[i]] = []byte(str)
		}
	}
	return assemble(path, found)
}

// Set replaces the subtree at path.
func (s *RedisStore) Set(ctx context.Context, path string, value any) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	leaves, err := flatten(path, value)
	if err != nil {
		return err
	}

	anc := ancestors(path)
	args := make([]any, 0, 2+len(anc)+2*len(leaves))
	args = append(args, path, len(anc))
	for _, a := range anc {
		args = append(args, a)
	}
	for leaf, data := range leaves {
		args = append(args, leaf, string(data))
	}

	if err := replaceScript.Run(ctx, s.client, []string{s.leavesKey, s.pathsKey}, args...).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", path, err)
	}
	return nil
}

// Push stores value under a new child key of path.
func (s *RedisStore) Push(ctx context.Context, path string, value any) (string, error) {
	key := NewPushKey()
	if err := s.Set(ctx, Join(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

// Remove deletes the subtree at path.
func (s *RedisStore) Remove(ctx context.Context, path string) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	if err := replaceScript.Run(ctx, s.client, []string{s.leavesKey, s.pathsKey}, path, 0).Err(); err != nil {
		return fmt.Errorf("redis remove %s: %w", path, err)
	}
	return nil
}

// Exists reports whether anything is stored at or below path.
func (s *RedisStore) Exists(ctx context.Context, path string) (bool, error) {
	path, err := CleanPath(path)
	if err != nil {
		return false, err
	}

	lo, hi := subtreeBounds(path)
	pipe := s.client.Pipeline()
	exact := pipe.HExists(ctx, s.leavesKey, path)
	below := pipe.ZLexCount(ctx, s.pathsKey, "["+lo, "("+hi)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return exact.Val() || below.Val() > 0, nil
}
