package models

import (
	"encoding/json"
	"fmt"
)

// UserIdentity пользователь, полученный по сессионному токену из API идентификации.
// Не сохраняется в хранилище.
type UserIdentity struct {
	Stat         string `json:"stat"`
	UserKey      string `json:"userkey,omitempty"`
	CUID         string `json:"cuid"`
	Email        string `json:"email"`
	Nickname     string `json:"nickname"`
	FillProfile  int    `json:"fill_profile,omitempty"`
	Profile      string `json:"profile,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Newsletter   int    `json:"newsletter,omitempty"`
	Service      string `json:"service"`
	PlanID       Plan   `json:"plan_id"`
	Date         string `json:"date"`
	Update       string `json:"update"`
	RequestedBy  string `json:"requested_by,omitempty"`
}

// HasPlan сообщает, оформлен ли у пользователя платный тариф.
func (u UserIdentity) HasPlan() bool {
	return u.PlanID.IsPaid()
}

// userIdentityWire ответ API как он приходит по сети: указатели позволяют
// отличить отсутствующее поле от пустой строки.
type userIdentityWire struct {
	Stat         *string `json:"stat" validate:"required"`
	UserKey      *string `json:"userkey"`
	CUID         *string `json:"cuid" validate:"required"`
	Email        *string `json:"email" validate:"required"`
	Nickname     *string `json:"nickname" validate:"required"`
	FillProfile  *int    `json:"fill_profile"`
	Profile      *string `json:"profile"`
	ThumbnailURL *string `json:"thumbnail_url"`
	Newsletter   *int    `json:"newsletter"`
	Service      *string `json:"service" validate:"required"`
	PlanID       Plan    `json:"plan_id"`
	Date         *string `json:"date" validate:"required"`
	Update       *string `json:"update" validate:"required"`
	RequestedBy  *string `json:"requested_by"`
}

// ParseUserIdentity разбирает тело ответа API идентификации.
// Неизвестный plan_id или отсутствие обязательного поля дают ErrValidation.
func ParseUserIdentity(data []byte) (*UserIdentity, error) {
	var w userIdentityWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: user identity: %v", ErrValidation, err)
	}
	if err := validate.Struct(w); err != nil {
		return nil, fmt.Errorf("%w: user identity: %s", ErrValidation, err)
	}
	return &UserIdentity{
		Stat:         *w.Stat,
		UserKey:      deref(w.UserKey),
		CUID:         *w.CUID,
		Email:        *w.Email,
		Nickname:     *w.Nickname,
		FillProfile:  deref(w.FillProfile),
		Profile:      deref(w.Profile),
		ThumbnailURL: deref(w.ThumbnailURL),
		Newsletter:   deref(w.Newsletter),
		Service:      *w.Service,
		PlanID:       w.PlanID,
		Date:         *w.Date,
		Update:       *w.Update,
		RequestedBy:  deref(w.RequestedBy),
	}, nil
}

// UpdatePlanResult ответ API на изменение тарифа.
type UpdatePlanResult struct {
	Success   bool   `json:"success"`
	CUID      string `json:"cuid"`
	PlanID    string `json:"plan_id"`
	UpdatedBy string `json:"updated_by"`
}

type updatePlanWire struct {
	Success   *bool   `json:"success" validate:"required"`
	CUID      *string `json:"cuid" validate:"required"`
	PlanID    *string `json:"plan_id" validate:"required"`
	UpdatedBy *string `json:"updated_by" validate:"required"`
}

// ParseUpdatePlanResult разбирает тело ответа на изменение тарифа.
func ParseUpdatePlanResult(data []byte) (*UpdatePlanResult, error) {
	var w updatePlanWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: update plan result: %v", ErrValidation, err)
	}
	if err := validate.Struct(w); err != nil {
		return nil, fmt.Errorf("%w: update plan result: %s", ErrValidation, err)
	}
	return &UpdatePlanResult{
		Success:   *w.Success,
		CUID:      *w.CUID,
		PlanID:    *w.PlanID,
		UpdatedBy: *w.UpdatedBy,
	}, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
