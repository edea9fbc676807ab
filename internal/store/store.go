// Package store wraps the Redis client used as the pipeline's shared KV
// backend: the ingest/candidate/alert streams, the alert hash + persisted/
// feedback sets, and the cluster counters and rate-limiter keys.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Store is a thin facade over a redis.Client exposing only the stream,
// hash, set, and counter operations the pipeline needs, grounded on the
// connection/ping pattern in dedupe.go and the TTL/SetNX/Scan idioms in
// redis_cache.go.
type Store struct {
	Client *redis.Client
}

// New connects to Redis at addr and pings it to fail fast on bad config.
func New(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}
	return &Store{Client: client}, nil
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.Client.Close()
}

// StreamEntry is one message read from a stream, independent of the
// go-redis wire representation.
type StreamEntry struct {
	ID     string
	Fields map[string]string
}

// XAdd appends fields to the named stream and returns the generated entry id.
func (s *Store) XAdd(ctx context.Context, stream string, fields map[string]any) (string, error) {
	return s.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}).Result()
}

// EnsureGroup creates a consumer group on stream starting from id (use "0"
// for the whole history, "$" for only new entries). Group-already-exists
// is swallowed, matching the broad except in the Python aggregator's
// xgroup_create call.
func (s *Store) EnsureGroup(ctx context.Context, stream, group, id string) error {
	err := s.Client.XGroupCreateMkStream(ctx, stream, group, id).Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("store: create consumer group %s/%s: %w", stream, group, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "BUSYGROUP")
}

// ReadGroup reads up to count entries for consumer within group on stream,
// blocking up to block for new data.
func (s *Store) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamEntry, error) {
	res, err := s.Client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var out []StreamEntry
	for _, s := range res {
		for _, msg := range s.Messages {
			out = append(out, StreamEntry{ID: msg.ID, Fields: stringifyFields(msg.Values)})
		}
	}
	return out, nil
}

func stringifyFields(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if sv, ok := v.(string); ok {
			out[k] = sv
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

// Ack acknowledges processed entry ids in batches of at most 500, matching
// the batching in the Python aggregator's ack loop.
func (s *Store) Ack(ctx context.Context, stream, group string, ids []string) error {
	const batchSize = 500
	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := s.Client.XAck(ctx, stream, group, ids[i:end]...).Err(); err != nil {
			return fmt.Errorf("store: xack %s: %w", stream, err)
		}
	}
	return nil
}

// XRangeOne fetches the single stream entry with the given id, if present.
func (s *Store) XRangeOne(ctx context.Context, stream, id string) (StreamEntry, bool, error) {
	res, err := s.Client.XRangeN(ctx, stream, id, id, 1).Result()
	if err != nil {
		return StreamEntry{}, false, err
	}
	if len(res) == 0 {
		return StreamEntry{}, false, nil
	}
	return StreamEntry{ID: res[0].ID, Fields: stringifyFields(res[0].Values)}, true, nil
}

// RevRange reads up to count of the most recent entries from stream.
func (s *Store) RevRange(ctx context.Context, stream string, count int64) ([]StreamEntry, error) {
	res, err := s.Client.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]StreamEntry, 0, len(res))
	for _, msg := range res {
		out = append(out, StreamEntry{ID: msg.ID, Fields: stringifyFields(msg.Values)})
	}
	return out, nil
}

// HGetAll returns the full hash at key, or an empty map if it doesn't exist.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.Client.HGetAll(ctx, key).Result()
}

// HSet sets the given fields on the hash at key.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]any) error {
	return s.Client.HSet(ctx, key, fields).Err()
}

// Expire sets a TTL on key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.Client.Expire(ctx, key, ttl).Err()
}

// Persist removes any TTL on key, matching Redis's PERSIST command.
func (s *Store) Persist(ctx context.Context, key string) error {
	return s.Client.Persist(ctx, key).Err()
}

// TTL returns the remaining TTL on key (-1 if it has none, -2 if missing).
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.Client.TTL(ctx, key).Result()
}

// SAdd adds member to the set at key.
func (s *Store) SAdd(ctx context.Context, key, member string) error {
	return s.Client.SAdd(ctx, key, member).Err()
}

// SRem removes member from the set at key.
func (s *Store) SRem(ctx context.Context, key, member string) error {
	return s.Client.SRem(ctx, key, member).Err()
}

// SIsMember reports whether member is in the set at key.
func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.Client.SIsMember(ctx, key, member).Result()
}

// SMembers returns every member of the set at key.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.Client.SMembers(ctx, key).Result()
}

// Incr increments the counter at key and returns the new value.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	return s.Client.Incr(ctx, key).Result()
}

// Get returns the string value at key, or "" if missing.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

// SetWithTTL sets key to value with the given TTL.
func (s *Store) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl).Err()
}

// Exists reports whether key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.Client.Exists(ctx, key).Result()
	return n > 0, err
}
