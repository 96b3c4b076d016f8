package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"scrabble-bot/internal/clock"
	"scrabble-bot/internal/store"
)

// Storage is a Redis-backed store.RecordStore. Each table is one hash of
// id -> JSON row; every committed write is published on the table's
// changes channel.
type Storage struct {
	client *redis.Client
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewWithClient(client, cfg, clock.New()), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config, c clock.Clock) *Storage {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{client: client, cfg: cfg, clock: c, logger: logger.With(slog.String("component", "redis"))}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

var _ store.RecordStore = (*Storage)(nil)

func (s *Storage) Query(ctx context.Context, table, orderBy string, dir store.Direction) ([]store.Record, error) {
	rows, err := s.client.HGetAll(ctx, s.tableKey(table)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]store.Record, 0, len(rows))
	for id, raw := range rows {
		rec, err := decodeRow(raw)
		if err != nil {
			s.logger.Warn("skipping undecodable row", slog.String("table", table), slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		out = append(out, rec)
	}
	// Hash iteration order is random; give ties a stable order.
	store.SortRecords(out, store.ColID, store.Ascending)
	if orderBy != "" {
		store.SortRecords(out, orderBy, dir)
	}
	return out, nil
}

func (s *Storage) Insert(ctx context.Context, table string, rec store.Record) error {
	id := uuid.NewString()
	row := rec.Clone()
	row[store.ColID] = id
	row[store.ColRegisteredAt] = s.clock.Now().UTC().Format(store.TimeLayout)

	claimed, err := s.claimUnique(ctx, table, id, row)
	if err != nil {
		return err
	}

	data, err := json.Marshal(row)
	if err != nil {
		s.releaseUnique(ctx, table, claimed)
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.tableKey(table), id, data)
		pipe.Publish(ctx, s.changesChannel(table), "insert")
		return nil
	})
	if err != nil {
		s.releaseUnique(ctx, table, claimed)
		return err
	}
	return nil
}

type claim struct {
	column, value string
}

// claimUnique reserves every unique column value of row for id, undoing
// partial claims when one is already taken.
func (s *Storage) claimUnique(ctx context.Context, table, id string, row store.Record) ([]claim, error) {
	var claimed []claim
	for _, col := range s.cfg.UniqueColumns {
		v := uniqueValue(row[col])
		if v == "" {
			continue
		}
		ok, err := s.client.HSetNX(ctx, s.uniqueIndexKey(table, col), v, id).Result()
		if err != nil {
			s.releaseUnique(ctx, table, claimed)
			return nil, err
		}
		if !ok {
			s.releaseUnique(ctx, table, claimed)
			return nil, fmt.Errorf("duplicate %s", col)
		}
		claimed = append(claimed, claim{column: col, value: v})
	}
	return claimed, nil
}

func (s *Storage) releaseUnique(ctx context.Context, table string, claims []claim) {
	for _, c := range claims {
		_ = s.client.HDel(ctx, s.uniqueIndexKey(table, c.column), c.value).Err()
	}
}

func (s *Storage) Update(ctx context.Context, table, id string, patch store.Record) error {
	key := s.tableKey(table)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, id).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrNotFound
			}
			return err
		}
		row, err := decodeRow(raw)
		if err != nil {
			return err
		}
		for k, v := range patch {
			if k == store.ColID || k == store.ColRegisteredAt {
				continue
			}
			row[k] = v
		}
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, data)
			pipe.Publish(ctx, s.changesChannel(table), "update")
			return nil
		})
		return err
	}, key)
}

func (s *Storage) Delete(ctx context.Context, table, id string) error {
	key := s.tableKey(table)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, id).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrNotFound
			}
			return err
		}
		row, err := decodeRow(raw)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, key, id)
			for _, col := range s.cfg.UniqueColumns {
				if v := uniqueValue(row[col]); v != "" {
					pipe.HDel(ctx, s.uniqueIndexKey(table, col), v)
				}
			}
			pipe.Publish(ctx, s.changesChannel(table), "delete")
			return nil
		})
		return err
	}, key)
}

// SubscribeToChanges listens on the table's channel. The subscription is
// confirmed before returning, so writes made afterwards are never missed.
func (s *Storage) SubscribeToChanges(table string, handler func(store.Change)) (store.Subscription, error) {
	ctx := context.Background()
	pubsub := s.client.Subscribe(ctx, s.changesChannel(table))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	done := make(chan struct{})
	msgs := pubsub.Channel()
	go func() {
		defer close(done)
		for range msgs {
			handler(store.Change{Table: table})
		}
	}()

	var once sync.Once
	return store.SubscriptionFunc(func() {
		once.Do(func() {
			_ = pubsub.Close()
			<-done
		})
	}), nil
}

func decodeRow(raw string) (store.Record, error) {
	var rec store.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func uniqueValue(v any) string {
	if v == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
}
