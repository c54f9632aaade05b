package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userIdentityResponse = `{
	"stat": "ok",
	"userkey": "calil:test123",
	"cuid": "1234567890",
	"email": "test@example.com",
	"nickname": "テストユーザー",
	"fill_profile": 1,
	"profile": "テストプロフィール",
	"thumbnail_url": "/profile/pics/test.jpg",
	"newsletter": 1,
	"service": "google",
	"plan_id": "Basic",
	"date": "2023-01-01 00:00:00.000000",
	"update": "2023-10-01 00:00:00.000000",
	"requested_by": "service-account@test.iam.gserviceaccount.com"
}`

func TestParseUserIdentity(t *testing.T) {
	u, err := ParseUserIdentity([]byte(userIdentityResponse))
	require.NoError(t, err)

	assert.Equal(t, "1234567890", u.CUID)
	assert.Equal(t, "test@example.com", u.Email)
	assert.Equal(t, PlanBasic, u.PlanID)
	assert.Equal(t, 1, u.FillProfile)
	assert.Equal(t, "calil:test123", u.UserKey)
	assert.True(t, u.HasPlan())
}

func TestParseUserIdentity_EmptyPlanAndOptionalFields(t *testing.T) {
	u, err := ParseUserIdentity([]byte(`{
		"stat": "ok", "cuid": "1", "email": "a@b.c", "nickname": "",
		"service": "calil", "plan_id": "", "date": "d", "update": "u"
	}`))
	require.NoError(t, err)
	assert.Equal(t, PlanNone, u.PlanID)
	assert.False(t, u.HasPlan())
	assert.Empty(t, u.UserKey)
	assert.Empty(t, u.Nickname)
}

func TestParseUserIdentity_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid plan", `{"stat":"ok","cuid":"1","email":"e","nickname":"n","service":"s","plan_id":"Invalid","date":"d","update":"u"}`},
		{"null plan", `{"stat":"ok","cuid":"1","email":"e","nickname":"n","service":"s","plan_id":null,"date":"d","update":"u"}`},
		{"missing cuid", `{"stat":"ok","email":"e","nickname":"n","service":"s","date":"d","update":"u"}`},
		{"missing update", `{"stat":"ok","cuid":"1","email":"e","nickname":"n","service":"s","date":"d"}`},
		{"not json", `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUserIdentity([]byte(tt.body))
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestParseUpdatePlanResult(t *testing.T) {
	r, err := ParseUpdatePlanResult([]byte(`{
		"success": true, "cuid": "1234567890", "plan_id": "Standard",
		"updated_by": "service-account@test.iam.gserviceaccount.com"
	}`))
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, "Standard", r.PlanID)

	_, err = ParseUpdatePlanResult([]byte(`{"success": true}`))
	assert.ErrorIs(t, err, ErrValidation)
}
