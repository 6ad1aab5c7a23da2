package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
)

const (
	// DefaultEtcdPrefix is the key prefix used when none is configured
	DefaultEtcdPrefix = "/registry-bridge/instances"

	// maxUpdateAttempts bounds compare-and-swap retries when a record changes under an update
	maxUpdateAttempts = 5
)

// EtcdSink stores each record as JSON under {prefix}/{id}
type EtcdSink struct {
	kv     clientv3.KV
	prefix string
}

var _ ReadWriter = (*EtcdSink)(nil)

// NewEtcdSink creates a sink on top of an etcd KV client
func NewEtcdSink(kv clientv3.KV, prefix string) *EtcdSink {
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	return &EtcdSink{kv: kv, prefix: strings.TrimRight(prefix, "/") + "/"}
}

func (s *EtcdSink) key(id string) string {
	return s.prefix + id
}

// Register overwrites the record
func (s *EtcdSink) Register(ctx context.Context, rec registry.InstanceRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode instance %s: %w", rec.ID, err)
	}
	if _, err := s.kv.Put(ctx, s.key(rec.ID), string(val)); err != nil {
		return fmt.Errorf("failed to put instance %s: %w", rec.ID, err)
	}
	return nil
}

// Update merges the changed fields with a compare-and-swap on the key's mod revision
func (s *EtcdSink) Update(ctx context.Context, rec registry.InstanceRecord, changes registry.ChangeSet) error {
	key := s.key(rec.ID)

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		resp, err := s.kv.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to read instance %s: %w", rec.ID, err)
		}

		merged := rec
		var cmp clientv3.Cmp
		if len(resp.Kvs) == 0 {
			cmp = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
		} else {
			var current registry.InstanceRecord
			if err := json.Unmarshal(resp.Kvs[0].Value, &current); err != nil {
				return fmt.Errorf("failed to decode stored instance %s: %w", rec.ID, err)
			}
			merged = registry.Merge(current, rec, changes)
			if merged.Equal(current) {
				return nil
			}
			cmp = clientv3.Compare(clientv3.ModRevision(key), "=", resp.Kvs[0].ModRevision)
		}

		val, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to encode instance %s: %w", rec.ID, err)
		}

		txn, err := s.kv.Txn(ctx).If(cmp).Then(clientv3.OpPut(key, string(val))).Commit()
		if err != nil {
			return fmt.Errorf("failed to update instance %s: %w", rec.ID, err)
		}
		if txn.Succeeded {
			return nil
		}
	}

	return fmt.Errorf("failed to update instance %s: concurrent modification after %d attempts", rec.ID, maxUpdateAttempts)
}

// Unregister deletes the key
func (s *EtcdSink) Unregister(ctx context.Context, rec registry.InstanceRecord) error {
	if _, err := s.kv.Delete(ctx, s.key(rec.ID)); err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", rec.ID, err)
	}
	return nil
}

// Get reads one record
func (s *EtcdSink) Get(ctx context.Context, id string) (registry.InstanceRecord, error) {
	resp, err := s.kv.Get(ctx, s.key(id))
	if err != nil {
		return registry.InstanceRecord{}, fmt.Errorf("failed to read instance %s: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return registry.InstanceRecord{}, ErrNotFound
	}
	var rec registry.InstanceRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		return registry.InstanceRecord{}, fmt.Errorf("failed to decode stored instance %s: %w", id, err)
	}
	return rec, nil
}

// List reads every record under the prefix in key order
func (s *EtcdSink) List(ctx context.Context) ([]registry.InstanceRecord, error) {
	resp, err := s.kv.Get(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	out := make([]registry.InstanceRecord, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec registry.InstanceRecord
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode stored instance %s: %w", kv.Key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of keys under the prefix
func (s *EtcdSink) Count(ctx context.Context) (int, error) {
	resp, err := s.kv.Get(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	return int(resp.Count), nil
}
