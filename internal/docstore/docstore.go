// Package docstore описывает минимальный интерфейс документного хранилища
// (get/set/update/delete/query), который одинаково реализуют удалённые
// хранилища и in-memory двойник для тестов.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound возвращается Update, если документ не существует.
var ErrNotFound = errors.New("document not found")

// ErrUnsupportedValue возвращается при попытке сохранить значение неподдерживаемого типа.
var ErrUnsupportedValue = errors.New("unsupported field value")

// ErrInvalidOperator возвращается для неизвестного оператора сравнения.
var ErrInvalidOperator = errors.New("invalid query operator")

// Fields набор полей документа.
type Fields map[string]any

// Document документ вместе с его ключом.
type Document struct {
	ID     string
	Fields Fields
}

// Operator оператор сравнения в запросе.
type Operator string

const (
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
)

// ParseOperator преобразует строку в Operator.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(s); op {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
		return op, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOperator, s)
	}
}

// Store набор операций над коллекциями документов.
//
// Реализации обязаны вести себя одинаково: значения нормализуются через
// Normalize, Query возвращает документы в порядке возрастания ID,
// limit <= 0 означает отсутствие ограничения.
type Store interface {
	// Get возвращает поля документа и признак его существования.
	Get(ctx context.Context, collection, id string) (Fields, bool, error)
	// Set записывает документ целиком, при merge=true сливает поля с существующими.
	Set(ctx context.Context, collection, id string, fields Fields, merge bool) error
	// Update сливает поля с существующим документом или возвращает ErrNotFound.
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Delete удаляет документ. Отсутствие документа ошибкой не считается.
	Delete(ctx context.Context, collection, id string) error
	// Query возвращает документы, у которых поле field удовлетворяет условию op value.
	Query(ctx context.Context, collection, field string, op Operator, value any, limit int) ([]Document, error)
}

// Clone возвращает поверхностную копию полей.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge копирует поля src поверх f.
func (f Fields) Merge(src Fields) {
	for k, v := range src {
		f[k] = v
	}
}
