// Package docstoretest содержит общий набор проверок поведения docstore.Store.
// Каждая реализация прогоняет его, чтобы in-memory двойник и удалённые
// хранилища вели себя одинаково.
package docstoretest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-core/internal/docstore"
)

const collection = "conformance"

// Factory создаёт чистое хранилище для одного подтеста.
type Factory func(t *testing.T) docstore.Store

// Run прогоняет все проверки для хранилища, создаваемого newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, newStore(t)) })
	t.Run("SetReplaces", func(t *testing.T) { testSetReplaces(t, newStore(t)) })
	t.Run("SetMerge", func(t *testing.T) { testSetMerge(t, newStore(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("UpdateMerges", func(t *testing.T) { testUpdateMerges(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("CollectionsIsolated", func(t *testing.T) { testCollectionsIsolated(t, newStore(t)) })
	t.Run("UnsupportedValue", func(t *testing.T) { testUnsupportedValue(t, newStore(t)) })
	t.Run("Query", func(t *testing.T) { testQuery(t, newStore(t)) })
	t.Run("QueryLimitAndOrder", func(t *testing.T) { testQueryLimitAndOrder(t, newStore(t)) })
	t.Run("QueryInvalidOperator", func(t *testing.T) { testQueryInvalidOperator(t, newStore(t)) })
}

func testGetMissing(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	fields, ok, err := s.Get(ctx, collection, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, fields)
}

func testSetAndGet(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	end := time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Set(ctx, collection, "u1", docstore.Fields{
		"name":   "Basic",
		"amount": 1000,
		"ratio":  0.5,
		"active": true,
		"end":    end,
		"skip":   nil,
	}, false))

	got, ok, err := s.Get(ctx, collection, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, docstore.Fields{
		"name":   "Basic",
		"amount": int64(1000),
		"ratio":  0.5,
		"active": true,
		"end":    docstore.FormatTime(end),
	}, got)
}

func testSetReplaces(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, collection, "u1", docstore.Fields{"a": "1", "b": "2"}, false))
	require.NoError(t, s.Set(ctx, collection, "u1", docstore.Fields{"a": "3"}, false))

	got, ok, err := s.Get(ctx, collection, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, docstore.Fields{"a": "3"}, got)
}

func testSetMerge(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	// merge по несуществующему документу создаёт его
	require.NoError(t, s.Set(ctx, collection, "u1", docstore.Fields{"a": "1", "b": "2"}, true))
	require.NoError(t, s.Set(ctx, collection, "u1", docstore.Fields{"b": "3", "c": "4"}, true))

	got, ok, err := s.Get(ctx, collection, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, docstore.Fields{"a": "1", "b": "3", "c": "4"}, got)
}

func testUpdateMissing(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	err := s.Update(ctx, collection, "ghost", docstore.Fields{"a": "1"})
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	_, ok, err := s.Get(ctx, collection, "ghost")
	require.NoError(t, err)
	assert.False(t, ok, "update must not create a document")
}

func testUpdateMerges(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, collection, "u1", docstore.Fields{"a": "1", "b": "2"}, false))
	require.NoError(t, s.Update(ctx, collection, "u1", docstore.Fields{"b": "changed"}))

	got, _, err := s.Get(ctx, collection, "u1")
	require.NoError(t, err)
	assert.Equal(t, docstore.Fields{"a": "1", "b": "changed"}, got)
}

func testDelete(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Delete(ctx, collection, "never-existed"))

	require.NoError(t, s.Set(ctx, collection, "u1", docstore.Fields{"a": "1"}, false))
	require.NoError(t, s.Delete(ctx, collection, "u1"))

	_, ok, err := s.Get(ctx, collection, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	docs, err := s.Query(ctx, collection, "a", docstore.OpEqual, "1", 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func testCollectionsIsolated(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "left", "id", docstore.Fields{"side": "left"}, false))
	require.NoError(t, s.Set(ctx, "right", "id", docstore.Fields{"side": "right"}, false))

	got, ok, err := s.Get(ctx, "left", "id")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "left", got["side"])

	docs, err := s.Query(ctx, "right", "side", docstore.OpNotEqual, "nothing", 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "right", docs[0].Fields["side"])
}

func testUnsupportedValue(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	err := s.Set(ctx, collection, "u1", docstore.Fields{"bad": []int{1}}, false)
	assert.ErrorIs(t, err, docstore.ErrUnsupportedValue)

	_, ok, err := s.Get(ctx, collection, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func seed(t *testing.T, s docstore.Store) {
	t.Helper()
	ctx := context.Background()
	docs := map[string]docstore.Fields{
		"a": {"customer": "cus_1", "amount": 1000, "active": true},
		"b": {"customer": "cus_2", "amount": 2000, "active": false},
		"c": {"customer": "cus_3", "amount": 5000},
		"d": {"amount": "5000"},
	}
	for id, f := range docs {
		require.NoError(t, s.Set(ctx, collection, id, f, false))
	}
}

func ids(docs []docstore.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func testQuery(t *testing.T, s docstore.Store) {
	seed(t, s)
	ctx := context.Background()

	tests := []struct {
		name  string
		field string
		op    docstore.Operator
		value any
		want  []string
	}{
		{"equal string", "customer", docstore.OpEqual, "cus_2", []string{"b"}},
		{"equal no match", "customer", docstore.OpEqual, "cus_x", []string{}},
		{"not equal includes missing field", "customer", docstore.OpNotEqual, "cus_1", []string{"b", "c", "d"}},
		{"greater number skips string", "amount", docstore.OpGreater, 1000, []string{"b", "c"}},
		{"greater or equal", "amount", docstore.OpGreaterOrEqual, 2000, []string{"b", "c"}},
		{"less", "amount", docstore.OpLess, 2000, []string{"a"}},
		{"less or equal", "amount", docstore.OpLessOrEqual, 2000.0, []string{"a", "b"}},
		{"equal number is not string", "amount", docstore.OpEqual, 5000, []string{"c"}},
		{"equal string is not number", "amount", docstore.OpEqual, "5000", []string{"d"}},
		{"bool equal", "active", docstore.OpEqual, false, []string{"b"}},
		{"string ordering", "customer", docstore.OpGreaterOrEqual, "cus_2", []string{"b", "c"}},
		{"missing field fails ordering", "active", docstore.OpLess, true, []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Query(ctx, collection, tt.field, tt.op, tt.value, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(docs))
		})
	}
}

func testQueryLimitAndOrder(t *testing.T, s docstore.Store) {
	seed(t, s)
	ctx := context.Background()

	docs, err := s.Query(ctx, collection, "amount", docstore.OpGreater, 0, 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "cus_1", docs[0].Fields["customer"])

	docs, err = s.Query(ctx, "empty", "amount", docstore.OpGreater, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func testQueryInvalidOperator(t *testing.T, s docstore.Store) {
	_, err := s.Query(context.Background(), collection, "a", docstore.Operator("~"), "x", 0)
	assert.ErrorIs(t, err, docstore.ErrInvalidOperator)
}
