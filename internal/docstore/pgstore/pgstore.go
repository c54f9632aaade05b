// Package pgstore реализует docstore.Store поверх PostgreSQL: каждый документ
// хранится строкой таблицы documents с полями в колонке JSONB.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/subscription-core/internal/docstore"
)

// Store хранилище документов в PostgreSQL.
type Store struct {
	DB *sql.DB
}

var _ docstore.Store = (*Store)(nil)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Open создаёт подключение к PostgreSQL и проверяет его.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	const op = "pgstore.Open"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return db, nil
}

// New создаёт хранилище поверх открытого пула соединений.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Get возвращает документ по ключу.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Fields, bool, error) {
	const op = "pgstore.Get"

	var raw string
	err := s.DB.QueryRowContext(ctx,
		`SELECT doc::text FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	fields, err := docstore.DecodeJSON([]byte(raw))
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return fields, true, nil
}

// Set вставляет документ или заменяет его; при merge поля сливаются оператором ||.
func (s *Store) Set(ctx context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	const op = "pgstore.Set"
	data, err := encode(fields)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO documents (collection, id, doc)
			  VALUES ($1, $2, $3::jsonb)
			  ON CONFLICT (collection, id) DO UPDATE SET doc = EXCLUDED.doc`
	if merge {
		query = `INSERT INTO documents (collection, id, doc)
			  VALUES ($1, $2, $3::jsonb)
			  ON CONFLICT (collection, id) DO UPDATE SET doc = documents.doc || EXCLUDED.doc`
	}
	if _, err := s.DB.ExecContext(ctx, query, collection, id, data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Update сливает поля с существующим документом.
func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	const op = "pgstore.Update"
	data, err := encode(fields)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE documents SET doc = doc || $3::jsonb WHERE collection = $1 AND id = $2`,
		collection, id, data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %s/%s: %w", op, collection, id, docstore.ErrNotFound)
	}
	return nil
}

// Delete удаляет документ, если он есть.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	const op = "pgstore.Delete"
	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Query выбирает документы по условию на поле JSONB. Индексов по полям нет.
func (s *Store) Query(ctx context.Context, collection, field string, op docstore.Operator, value any, limit int) ([]docstore.Document, error) {
	const opName = "pgstore.Query"
	if _, err := docstore.ParseOperator(string(op)); err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}
	norm, err := docstore.NormalizeValue(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}
	pred, err := predicate(field, op, norm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}

	builder := psql.Select("id", "doc::text").
		From("documents").
		Where(sq.Eq{"collection": collection}).
		Where(pred).
		OrderBy(`id COLLATE "C"`)
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []docstore.Document
	for rows.Next() {
		var id, raw string
		if err = rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", opName, err)
		}
		fields, err := docstore.DecodeJSON([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", opName, id, err)
		}
		result = append(result, docstore.Document{ID: id, Fields: fields})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}
	return result, nil
}

// predicate повторяет семантику docstore.Match на SQL: сравнение только
// значений одного типа JSONB, отсутствующее поле проходит лишь "!=".
func predicate(field string, op docstore.Operator, value any) (sq.Sqlizer, error) {
	if value == nil {
		if op == docstore.OpNotEqual {
			return sq.Expr("TRUE"), nil
		}
		return sq.Expr("FALSE"), nil
	}

	switch op {
	case docstore.OpEqual, docstore.OpNotEqual:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if op == docstore.OpNotEqual {
			return sq.Expr("(doc -> ?::text) IS DISTINCT FROM ?::jsonb", field, string(data)), nil
		}
		return sq.Expr("(doc -> ?::text) = ?::jsonb", field, string(data)), nil
	}

	// CASE фиксирует порядок вычисления: приведение типа выполняется
	// только после проверки jsonb_typeof
	sqlOp := string(op)
	switch v := value.(type) {
	case string:
		return sq.Expr(
			"CASE WHEN jsonb_typeof(doc -> ?::text) = 'string' THEN (doc ->> ?::text) COLLATE \"C\" "+sqlOp+" ?::text ELSE FALSE END",
			field, field, v), nil
	case int64:
		return sq.Expr(
			"CASE WHEN jsonb_typeof(doc -> ?::text) = 'number' THEN (doc ->> ?::text)::numeric "+sqlOp+" ?::numeric ELSE FALSE END",
			field, field, strconv.FormatInt(v, 10)), nil
	case float64:
		return sq.Expr(
			"CASE WHEN jsonb_typeof(doc -> ?::text) = 'number' THEN (doc ->> ?::text)::numeric "+sqlOp+" ?::numeric ELSE FALSE END",
			field, field, strconv.FormatFloat(v, 'f', -1, 64)), nil
	case bool:
		return sq.Expr(
			"CASE WHEN jsonb_typeof(doc -> ?::text) = 'boolean' THEN (doc ->> ?::text)::boolean "+sqlOp+" ?::boolean ELSE FALSE END",
			field, field, strconv.FormatBool(v)), nil
	default:
		return nil, fmt.Errorf("%w: %T", docstore.ErrUnsupportedValue, value)
	}
}

func encode(fields docstore.Fields) (string, error) {
	norm, err := docstore.Normalize(fields)
	if err != nil {
		return "", err
	}
	data, err := docstore.EncodeJSON(norm)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
