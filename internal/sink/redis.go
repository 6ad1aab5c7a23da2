package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
)

// DefaultRedisPrefix is the key prefix used when none is configured
const DefaultRedisPrefix = "registry-bridge"

const redisIDField = "id"

// RedisSink stores each record as a hash with one JSON-encoded entry per field, plus a set of
// all identifiers. Updates touch only the changed hash entries.
type RedisSink struct {
	client redis.UniversalClient
	prefix string
}

var _ ReadWriter = (*RedisSink)(nil)

// NewRedisSink creates a sink on top of a redis client
func NewRedisSink(client redis.UniversalClient, prefix string) *RedisSink {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisSink{client: client, prefix: prefix}
}

func (s *RedisSink) instanceKey(id string) string {
	return s.prefix + ":instance:" + id
}

func (s *RedisSink) idsKey() string {
	return s.prefix + ":ids"
}

// Register replaces the whole hash
func (s *RedisSink) Register(ctx context.Context, rec registry.InstanceRecord) error {
	values, err := encodeHash(rec, registry.AllFields)
	if err != nil {
		return err
	}

	key := s.instanceKey(rec.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		pipe.SAdd(ctx, s.idsKey(), rec.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register instance %s: %w", rec.ID, err)
	}
	return nil
}

// Update writes the changed fields, or the whole record when the instance is absent.
// The existence check and the write run under WATCH so a concurrent unregister cannot
// leave a partial hash behind.
func (s *RedisSink) Update(ctx context.Context, rec registry.InstanceRecord, changes registry.ChangeSet) error {
	key := s.instanceKey(rec.ID)

	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}

		fields := []registry.Field(changes)
		if exists == 0 {
			fields = registry.AllFields
		}
		values, err := encodeHash(rec, fields)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, values)
			pipe.SAdd(ctx, s.idsKey(), rec.ID)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("failed to update instance %s: %w", rec.ID, err)
		}
	}
	return fmt.Errorf("failed to update instance %s: concurrent modification after %d attempts", rec.ID, maxUpdateAttempts)
}

// Unregister deletes the hash and the identifier
func (s *RedisSink) Unregister(ctx context.Context, rec registry.InstanceRecord) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.instanceKey(rec.ID))
		pipe.SRem(ctx, s.idsKey(), rec.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to unregister instance %s: %w", rec.ID, err)
	}
	return nil
}

// Get reads one record
func (s *RedisSink) Get(ctx context.Context, id string) (registry.InstanceRecord, error) {
	values, err := s.client.HGetAll(ctx, s.instanceKey(id)).Result()
	if err != nil {
		return registry.InstanceRecord{}, fmt.Errorf("failed to read instance %s: %w", id, err)
	}
	if len(values) == 0 {
		return registry.InstanceRecord{}, ErrNotFound
	}
	return decodeHash(values)
}

// List reads every record in identifier order
func (s *RedisSink) List(ctx context.Context) ([]registry.InstanceRecord, error) {
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	slices.Sort(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.instanceKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	out := make([]registry.InstanceRecord, 0, len(ids))
	for _, cmd := range cmds {
		values := cmd.Val()
		if len(values) == 0 {
			continue
		}
		rec, err := decodeHash(values)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the size of the identifier set
func (s *RedisSink) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.idsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	return int(n), nil
}

func encodeHash(rec registry.InstanceRecord, fields []registry.Field) (map[string]any, error) {
	values := make(map[string]any, len(fields)+1)
	values[redisIDField] = rec.ID
	for _, f := range fields {
		data, err := json.Marshal(fieldRef(&rec, f))
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s of instance %s: %w", f, rec.ID, err)
		}
		values[string(f)] = string(data)
	}
	return values, nil
}

func decodeHash(values map[string]string) (registry.InstanceRecord, error) {
	rec := registry.InstanceRecord{ID: values[redisIDField]}
	for _, f := range registry.AllFields {
		raw, ok := values[string(f)]
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(raw), fieldRef(&rec, f)); err != nil {
			return registry.InstanceRecord{}, fmt.Errorf("failed to decode field %s of instance %s: %w", f, rec.ID, err)
		}
	}
	return rec, nil
}
