package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-core/internal/config"
	"github.com/magabrotheeeer/subscription-core/internal/docstore"
	"github.com/magabrotheeeer/subscription-core/internal/docstore/memory"
	"github.com/magabrotheeeer/subscription-core/internal/docstore/redisstore"
	"github.com/magabrotheeeer/subscription-core/internal/models"
)

// fakeClock возвращает время, сдвигая его на секунду при каждом вызове.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(time.Second)
	return now
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)}
}

func setupRepository(t *testing.T) (*Repository, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, WithClock(newClock().Now)), store
}

func testRecord() models.Record {
	return models.Record{
		StripeCustomerID:     "cus_test123",
		StripeSubscriptionID: "sub_test123",
		StripePriceID:        "price_basic",
		PlanName:             models.PlanBasic,
		PlanAmount:           1000,
		Status:               models.StatusActive,
		CurrentPeriodEnd:     time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestRepository_CreateOrUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh key stamps created equal to updated", func(t *testing.T) {
		repo, _ := setupRepository(t)

		rec, err := repo.CreateOrUpdate(ctx, "4754259718", testRecord().Fields())
		require.NoError(t, err)
		require.NotNil(t, rec)

		assert.Equal(t, "4754259718", rec.ID)
		assert.False(t, rec.Created.IsZero())
		assert.Equal(t, rec.Created, rec.Updated)
	})

	t.Run("second write keeps created and advances updated", func(t *testing.T) {
		repo, _ := setupRepository(t)

		first, err := repo.CreateOrUpdate(ctx, "4754259718", testRecord().Fields())
		require.NoError(t, err)

		second, err := repo.CreateOrUpdate(ctx, "4754259718", docstore.Fields{
			models.FieldPlanName:   string(models.PlanPro),
			models.FieldPlanAmount: 5000,
		})
		require.NoError(t, err)

		assert.Equal(t, first.Created, second.Created)
		assert.True(t, second.Updated.After(first.Updated))
		assert.Equal(t, models.PlanPro, second.PlanName)
		assert.Equal(t, 5000, second.PlanAmount)
		// поля, которых не было во входных данных, сохраняются
		assert.Equal(t, "cus_test123", second.StripeCustomerID)
		assert.Equal(t, models.StatusActive, second.Status)
	})

	t.Run("created in input is ignored on update", func(t *testing.T) {
		repo, _ := setupRepository(t)

		first, err := repo.CreateOrUpdate(ctx, "4754259718", testRecord().Fields())
		require.NoError(t, err)

		second, err := repo.CreateOrUpdate(ctx, "4754259718", docstore.Fields{
			models.FieldCreated: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.Equal(t, first.Created, second.Created)
	})

	t.Run("returns stored value", func(t *testing.T) {
		repo, store := setupRepository(t)

		_, err := repo.CreateOrUpdate(ctx, "4754259718", testRecord().Fields())
		require.NoError(t, err)

		stored, ok, err := store.Get(ctx, Collection, "4754259718")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1000), stored[models.FieldPlanAmount])
		assert.NotContains(t, stored, models.FieldID)
	})

	t.Run("empty user id", func(t *testing.T) {
		repo, _ := setupRepository(t)

		_, err := repo.CreateOrUpdate(ctx, "", testRecord().Fields())
		assert.ErrorIs(t, err, ErrEmptyUserID)
	})

	t.Run("unsupported value", func(t *testing.T) {
		repo, _ := setupRepository(t)

		_, err := repo.CreateOrUpdate(ctx, "4754259718", docstore.Fields{"bad": struct{}{}})
		assert.ErrorIs(t, err, docstore.ErrUnsupportedValue)
	})
}

func TestRepository_Save(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		amount  int
		wantErr bool
	}{
		{name: "amount 1000", amount: 1000},
		{name: "amount 2000", amount: 2000},
		{name: "amount 5000", amount: 5000},
		{name: "amount 0", amount: 0, wantErr: true},
		{name: "amount 1500", amount: 1500, wantErr: true},
		{name: "negative amount", amount: -1000, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, store := setupRepository(t)
			rec := testRecord()
			rec.PlanAmount = tt.amount

			got, err := repo.Save(ctx, "4754259718", rec)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidation)
				_, ok, getErr := store.Get(ctx, Collection, "4754259718")
				require.NoError(t, getErr)
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.amount, got.PlanAmount)
		})
	}
}

func TestRepository_GetByUserID(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		repo, _ := setupRepository(t)
		want := testRecord()

		_, err := repo.Save(ctx, "4754259718", want)
		require.NoError(t, err)

		got, err := repo.GetByUserID(ctx, "4754259718")
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, "4754259718", got.ID)
		assert.Equal(t, models.PlanBasic, got.PlanName)
		assert.Equal(t, 1000, got.PlanAmount)
		assert.Equal(t, models.StatusActive, got.Status)
		assert.Equal(t, "cus_test123", got.StripeCustomerID)
		assert.Equal(t, "sub_test123", got.StripeSubscriptionID)
		assert.Equal(t, "price_basic", got.StripePriceID)
		assert.True(t, want.CurrentPeriodEnd.Equal(got.CurrentPeriodEnd))
	})

	t.Run("absent", func(t *testing.T) {
		repo, _ := setupRepository(t)

		got, err := repo.GetByUserID(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("malformed document", func(t *testing.T) {
		repo, store := setupRepository(t)
		require.NoError(t, store.Set(ctx, Collection, "4754259718", docstore.Fields{
			models.FieldPlanAmount: "a lot",
		}, false))

		_, err := repo.GetByUserID(ctx, "4754259718")
		assert.ErrorIs(t, err, models.ErrMalformedRecord)
	})
}

func TestRepository_GetByStripeCustomerID(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	_, err := repo.Save(ctx, "4754259718", testRecord())
	require.NoError(t, err)

	other := testRecord()
	other.StripeCustomerID = "cus_other"
	_, err = repo.Save(ctx, "1111111111", other)
	require.NoError(t, err)

	tests := []struct {
		name       string
		customerID string
		wantID     string
	}{
		{name: "found", customerID: "cus_test123", wantID: "4754259718"},
		{name: "other customer", customerID: "cus_other", wantID: "1111111111"},
		{name: "absent", customerID: "cus_missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.GetByStripeCustomerID(ctx, tt.customerID)
			require.NoError(t, err)
			if tt.wantID == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
			assert.Equal(t, tt.customerID, got.StripeCustomerID)
		})
	}
}

func TestRepository_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("existing record", func(t *testing.T) {
		repo, _ := setupRepository(t)
		_, err := repo.Save(ctx, "4754259718", testRecord())
		require.NoError(t, err)

		ok, err := repo.Delete(ctx, "4754259718")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByUserID(ctx, "4754259718")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("never existed", func(t *testing.T) {
		repo, _ := setupRepository(t)

		ok, err := repo.Delete(ctx, "missing")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByUserID(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("store fault", func(t *testing.T) {
		repo := New(&failingStore{Store: memory.New(), err: errStoreDown})

		ok, err := repo.Delete(ctx, "4754259718")
		assert.False(t, ok)
		assert.ErrorIs(t, err, errStoreDown)
	})
}

func TestRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("existing record", func(t *testing.T) {
		repo, _ := setupRepository(t)
		created, err := repo.Save(ctx, "4754259718", testRecord())
		require.NoError(t, err)

		ok, err := repo.UpdateStatus(ctx, "4754259718", models.StatusCanceled)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByUserID(ctx, "4754259718")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCanceled, got.Status)
		assert.Equal(t, created.Created, got.Created)
		assert.True(t, got.Updated.After(created.Updated))
		assert.Equal(t, models.PlanBasic, got.PlanName)
	})

	t.Run("missing record is a soft failure", func(t *testing.T) {
		repo, store := setupRepository(t)

		ok, err := repo.UpdateStatus(ctx, "missing", models.StatusActive)
		require.NoError(t, err)
		assert.False(t, ok)

		_, exists, err := store.Get(ctx, Collection, "missing")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("invalid status", func(t *testing.T) {
		repo, _ := setupRepository(t)
		_, err := repo.Save(ctx, "4754259718", testRecord())
		require.NoError(t, err)

		ok, err := repo.UpdateStatus(ctx, "4754259718", models.Status("paused"))
		assert.False(t, ok)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("store fault", func(t *testing.T) {
		repo := New(&failingStore{Store: memory.New(), err: errStoreDown})

		ok, err := repo.UpdateStatus(ctx, "4754259718", models.StatusActive)
		assert.False(t, ok)
		assert.ErrorIs(t, err, errStoreDown)
	})
}

func TestRepository_Timeout(t *testing.T) {
	var deadline bool
	store := &inspectStore{Store: memory.New(), onGet: func(ctx context.Context) {
		_, deadline = ctx.Deadline()
	}}
	repo := New(store, WithTimeout(time.Second))

	_, err := repo.GetByUserID(context.Background(), "4754259718")
	require.NoError(t, err)
	assert.True(t, deadline)
}

// TestRepository_RedisStore проверяет, что репозиторий ведёт себя одинаково
// поверх Redis и in-memory хранилища.
func TestRepository_RedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	ctx := context.Background()
	db, err := redisstore.Connect(ctx, config.RedisConnection{AddressRedis: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := New(redisstore.New(db), WithClock(newClock().Now))

	created, err := repo.Save(ctx, "4754259718", testRecord())
	require.NoError(t, err)
	assert.Equal(t, created.Created, created.Updated)

	got, err := repo.GetByStripeCustomerID(ctx, "cus_test123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "4754259718", got.ID)
	assert.Equal(t, 1000, got.PlanAmount)

	ok, err := repo.UpdateStatus(ctx, "missing", models.StatusActive)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Delete(ctx, "4754259718")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = repo.GetByUserID(ctx, "4754259718")
	require.NoError(t, err)
	assert.Nil(t, got)
}

var errStoreDown = errors.New("store is down")

// failingStore отвечает ошибкой на любую запись.
type failingStore struct {
	docstore.Store
	err error
}

func (s *failingStore) Update(context.Context, string, string, docstore.Fields) error {
	return s.err
}

func (s *failingStore) Delete(context.Context, string, string) error {
	return s.err
}

type inspectStore struct {
	docstore.Store
	onGet func(ctx context.Context)
}

func (s *inspectStore) Get(ctx context.Context, collection, id string) (docstore.Fields, bool, error) {
	s.onGet(ctx)
	return s.Store.Get(ctx, collection, id)
}
