// Package redisstore реализует docstore.Store поверх Redis. Документ хранится
// JSON-строкой по ключу doc:{collection}:{id}, идентификаторы коллекции лежат
// во множестве docs:{collection}. Query перебирает коллекцию без индексов.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/subscription-core/internal/config"
	"github.com/magabrotheeeer/subscription-core/internal/docstore"
)

// Store хранилище документов в Redis.
type Store struct {
	Db *redis.Client
}

var _ docstore.Store = (*Store)(nil)

// Connect открывает соединение с Redis и проверяет его через PING.
func Connect(ctx context.Context, cfg config.RedisConnection) (*redis.Client, error) {
	const op = "redisstore.Connect"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return db, nil
}

// New создаёт хранилище поверх готового клиента.
func New(db *redis.Client) *Store {
	return &Store{Db: db}
}

func docKey(collection, id string) string {
	return "doc:" + collection + ":" + id
}

func indexKey(collection string) string {
	return "docs:" + collection
}

// Get возвращает документ по ключу.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Fields, bool, error) {
	const op = "redisstore.Get"
	raw, err := s.Db.Get(ctx, docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	fields, err := docstore.DecodeJSON(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return fields, true, nil
}

// Set записывает документ. При merge поля сливаются под WATCH.
func (s *Store) Set(ctx context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	const op = "redisstore.Set"
	norm, err := docstore.Normalize(fields)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !merge {
		if err := s.write(ctx, s.Db, collection, id, norm); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	key := docKey(collection, id)
	err = s.Db.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if current == nil {
			current = docstore.Fields{}
		}
		current.Merge(norm)
		return s.write(ctx, tx, collection, id, current)
	}, key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Update сливает поля с существующим документом.
func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	const op = "redisstore.Update"
	norm, err := docstore.Normalize(fields)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	key := docKey(collection, id)
	err = s.Db.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
		}
		current.Merge(norm)
		return s.write(ctx, tx, collection, id, current)
	}, key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete удаляет документ и его ID из индекса коллекции.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	const op = "redisstore.Delete"
	_, err := s.Db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, docKey(collection, id))
		pipe.SRem(ctx, indexKey(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Query читает все документы коллекции и фильтрует их через docstore.Match.
func (s *Store) Query(ctx context.Context, collection, field string, op docstore.Operator, value any, limit int) ([]docstore.Document, error) {
	const opName = "redisstore.Query"
	if _, err := docstore.ParseOperator(string(op)); err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}
	norm, err := docstore.NormalizeValue(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}

	ids, err := s.Db.SMembers(ctx, indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(collection, id)
	}
	values, err := s.Db.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}

	var result []docstore.Document
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// документ удалён между SMEMBERS и MGET
			continue
		}
		fields, err := docstore.DecodeJSON([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", opName, ids[i], err)
		}
		if !docstore.Match(fields, field, op, norm) {
			continue
		}
		result = append(result, docstore.Document{ID: ids[i], Fields: fields})
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func readTx(ctx context.Context, tx *redis.Tx, key string) (docstore.Fields, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return docstore.DecodeJSON(raw)
}

// txPipeliner общая часть *redis.Client и *redis.Tx.
type txPipeliner interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

func (s *Store) write(ctx context.Context, c txPipeliner, collection, id string, fields docstore.Fields) error {
	data, err := docstore.EncodeJSON(fields)
	if err != nil {
		return err
	}
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, docKey(collection, id), data, 0)
		pipe.SAdd(ctx, indexKey(collection), id)
		return nil
	})
	return err
}
