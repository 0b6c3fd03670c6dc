package ordercontrol

import (
	"context"
	"fmt"
	"strconv"

	"github.com/orgstream/orgstream/internal/config"
	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
	"github.com/orgstream/orgstream/pkg/db"
	redis "github.com/redis/go-redis/v9"
)

// advanceScript is the conditional write: the key may only move from ARGV[1]
// to ARGV[2], where a missing key counts as 0.
const advanceScript = `
local cur = redis.call("GET", KEYS[1])
if cur == false then
  cur = "0"
end
if cur == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2])
  return 1
end
return 0
`

type redisStore struct {
	client *redis.Client
	script *redis.Script
	scope  string
}

func NewRedisStore(client *redis.Client, cfg config.Config) Store {
	return &redisStore{
		client: client,
		script: redis.NewScript(advanceScript),
		scope:  cfg.OrderControlScope,
	}
}

func (s *redisStore) LastProcessed(ctx context.Context, streamID string) (uint64, error) {
	value, err := s.client.Get(ctx, s.key(streamID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, classify(err)
	}
	return strconv.ParseUint(value, 10, 64)
}

func (s *redisStore) LastProcessedBatch(ctx context.Context, streamIDs []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(streamIDs))
	if len(streamIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(streamIDs))
	for i, id := range streamIDs {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, classify(err)
	}
	for i, raw := range values {
		out[streamIDs[i]] = 0
		if str, ok := raw.(string); ok {
			parsed, err := strconv.ParseUint(str, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("order control key %s: %w", keys[i], err)
			}
			out[streamIDs[i]] = parsed
		}
	}
	return out, nil
}

func (s *redisStore) Advance(ctx context.Context, streamID string, from, to uint64) error {
	if to < from {
		return ErrInvalidAdvance
	}
	result, err := s.script.Run(ctx, s.client,
		[]string{s.key(streamID)},
		strconv.FormatUint(from, 10),
		strconv.FormatUint(to, 10),
	).Int()
	if err != nil {
		return classify(err)
	}
	if result == 0 {
		return ErrOutOfOrder
	}
	return nil
}

func (s *redisStore) AdvanceBatch(ctx context.Context, updates []Update) []error {
	results := make([]error, len(updates))
	for i, u := range updates {
		results[i] = s.Advance(ctx, u.StreamID, u.From, u.To)
	}
	return results
}

func (s *redisStore) Reset(ctx context.Context, streamIDs ...string) error {
	if len(streamIDs) > 0 {
		keys := make([]string, len(streamIDs))
		for i, id := range streamIDs {
			keys[i] = s.key(id)
		}
		return classify(s.client.Del(ctx, keys...).Err())
	}

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.scope+":*", 100).Result()
		if err != nil {
			return classify(err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return classify(err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *redisStore) key(streamID string) string {
	return s.scope + ":" + streamID
}

// classify tags dead-connection failures as ErrStoreUnavailable, the shared
// retryable taxonomy of the pipeline's backing stores.
func classify(err error) error {
	if err == nil || err == redis.Nil {
		return err
	}
	if db.IsUnavailableErr(err) {
		return fmt.Errorf("%w: %v", esdomain.ErrStoreUnavailable, err)
	}
	return err
}
