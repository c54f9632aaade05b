package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-core/internal/docstore"
)

func validRecord() Record {
	return Record{
		StripeCustomerID:     "cus_test123",
		StripeSubscriptionID: "sub_test123",
		StripePriceID:        "price_basic",
		PlanName:             PlanBasic,
		PlanAmount:           1000,
		Status:               StatusActive,
		CurrentPeriodEnd:     time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestRecord_Validate_PlanAmount(t *testing.T) {
	for _, amount := range AllowedPlanAmounts {
		r := validRecord()
		r.PlanAmount = amount
		assert.NoError(t, r.Validate(), "amount %d", amount)
	}

	for _, amount := range []int{0, -1000, 999, 1500, 3000, 10000} {
		r := validRecord()
		r.PlanAmount = amount
		assert.ErrorIs(t, r.Validate(), ErrValidation, "amount %d", amount)
	}
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *Record)
	}{
		{"missing customer id", func(r *Record) { r.StripeCustomerID = "" }},
		{"missing subscription id", func(r *Record) { r.StripeSubscriptionID = "" }},
		{"missing price id", func(r *Record) { r.StripePriceID = "" }},
		{"no plan", func(r *Record) { r.PlanName = PlanNone }},
		{"unknown plan", func(r *Record) { r.PlanName = Plan("Gold") }},
		{"unknown status", func(r *Record) { r.Status = Status("paused") }},
		{"missing period end", func(r *Record) { r.CurrentPeriodEnd = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.modify(&r)
			assert.ErrorIs(t, r.Validate(), ErrValidation)
		})
	}
}

func TestRecord_FieldsRoundTrip(t *testing.T) {
	r := validRecord()
	r.Created = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	r.Updated = time.Date(2025, 10, 2, 12, 0, 0, 0, time.UTC)

	stored, err := docstore.Normalize(r.Fields())
	require.NoError(t, err)

	got, err := RecordFromFields("4754259718", stored)
	require.NoError(t, err)

	r.ID = "4754259718"
	assert.Equal(t, &r, got)
}

func TestRecord_FieldsOmitZeroTimestamps(t *testing.T) {
	f := validRecord().Fields()
	assert.NotContains(t, f, FieldCreated)
	assert.NotContains(t, f, FieldUpdated)
	assert.Equal(t, "Basic", f[FieldPlanName])
	assert.Equal(t, "active", f[FieldStatus])
}

func TestRecordFromFields_Partial(t *testing.T) {
	got, err := RecordFromFields("u1", docstore.Fields{
		FieldPlanName:   "Pro",
		FieldPlanAmount: int64(5000),
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, PlanPro, got.PlanName)
	assert.Equal(t, 5000, got.PlanAmount)
	assert.Empty(t, got.StripeCustomerID)
	assert.True(t, got.Created.IsZero())
}

func TestRecordFromFields_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		fields docstore.Fields
	}{
		{"unknown plan", docstore.Fields{FieldPlanName: "Gold"}},
		{"unknown status", docstore.Fields{FieldStatus: "paused"}},
		{"amount not a number", docstore.Fields{FieldPlanAmount: "1000"}},
		{"fractional amount", docstore.Fields{FieldPlanAmount: 10.5}},
		{"customer id not a string", docstore.Fields{FieldStripeCustomerID: int64(1)}},
		{"bad time", docstore.Fields{FieldCurrentPeriodEnd: "yesterday"}},
		{"time wrong type", docstore.Fields{FieldCreated: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RecordFromFields("u1", tt.fields)
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestNewSubscriptionInfo(t *testing.T) {
	info := NewSubscriptionInfo("u1", nil)
	assert.Equal(t, "u1", info.CUID)
	assert.False(t, info.IsActive)
	assert.Nil(t, info.PlanName)

	r := validRecord()
	info = NewSubscriptionInfo("u1", &r)
	assert.True(t, info.IsActive)
	require.NotNil(t, info.PlanAmount)
	assert.Equal(t, 1000, *info.PlanAmount)
	assert.Equal(t, "Basic", *info.PlanName)

	r.Status = StatusPastDue
	info = NewSubscriptionInfo("u1", &r)
	assert.False(t, info.IsActive)
	assert.Equal(t, "past_due", *info.Status)
}
