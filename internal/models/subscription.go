// Package models содержит доменные структуры: запись о подписке пользователя,
// тарифы, статусы и данные пользователя из API идентификации.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscription-core/internal/docstore"
)

// ErrValidation ошибка проверки входных данных. Возникает до любого обращения к хранилищу или сети.
var ErrValidation = errors.New("validation error")

// ErrMalformedRecord документ в хранилище не удаётся разобрать в Record.
var ErrMalformedRecord = errors.New("malformed subscription record")

// Имена полей записи в хранилище.
const (
	FieldID                   = "id"
	FieldStripeCustomerID     = "stripe_customer_id"
	FieldStripeSubscriptionID = "stripe_subscription_id"
	FieldStripePriceID        = "stripe_price_id"
	FieldPlanName             = "plan_name"
	FieldPlanAmount           = "plan_amount"
	FieldStatus               = "subscription_status"
	FieldCurrentPeriodEnd     = "current_period_end"
	FieldCreated              = "created"
	FieldUpdated              = "updated"
)

var validate = validator.New()

// Record текущее состояние платной подписки пользователя.
// Ключом записи в хранилище служит cuid пользователя, он же попадает в ID при чтении.
type Record struct {
	ID                   string    `json:"id,omitempty"`
	StripeCustomerID     string    `json:"stripe_customer_id" validate:"required"`
	StripeSubscriptionID string    `json:"stripe_subscription_id" validate:"required"`
	StripePriceID        string    `json:"stripe_price_id" validate:"required"`
	PlanName             Plan      `json:"plan_name"`
	PlanAmount           int       `json:"plan_amount" validate:"oneof=1000 2000 5000"`
	Status               Status    `json:"subscription_status"`
	CurrentPeriodEnd     time.Time `json:"current_period_end" validate:"required"`
	Created              time.Time `json:"created"`
	Updated              time.Time `json:"updated"`
}

// Validate проверяет инварианты записи.
func (r Record) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if !r.PlanName.IsPaid() {
		return fmt.Errorf("%w: invalid plan_name %q", ErrValidation, r.PlanName)
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	return nil
}

// Fields возвращает представление записи для хранилища.
// Нулевые created/updated не включаются: ими управляет репозиторий.
func (r Record) Fields() docstore.Fields {
	f := docstore.Fields{
		FieldStripeCustomerID:     r.StripeCustomerID,
		FieldStripeSubscriptionID: r.StripeSubscriptionID,
		FieldStripePriceID:        r.StripePriceID,
		FieldPlanName:             string(r.PlanName),
		FieldPlanAmount:           r.PlanAmount,
		FieldStatus:               string(r.Status),
		FieldCurrentPeriodEnd:     r.CurrentPeriodEnd,
	}
	if !r.Created.IsZero() {
		f[FieldCreated] = r.Created
	}
	if !r.Updated.IsZero() {
		f[FieldUpdated] = r.Updated
	}
	return f
}

// RecordFromFields разбирает документ хранилища. Отсутствующие поля остаются
// нулевыми, поля неверного типа или с неизвестным значением дают ErrMalformedRecord.
func RecordFromFields(id string, f docstore.Fields) (*Record, error) {
	d := decoder{fields: f}
	r := &Record{
		ID:                   id,
		StripeCustomerID:     d.asString(FieldStripeCustomerID),
		StripeSubscriptionID: d.asString(FieldStripeSubscriptionID),
		StripePriceID:        d.asString(FieldStripePriceID),
		PlanAmount:           d.asInt(FieldPlanAmount),
		CurrentPeriodEnd:     d.asTime(FieldCurrentPeriodEnd),
		Created:              d.asTime(FieldCreated),
		Updated:              d.asTime(FieldUpdated),
	}
	if _, ok := f[FieldPlanName]; ok {
		p, err := ParsePlan(d.asString(FieldPlanName))
		if err != nil {
			d.fail(FieldPlanName, err)
		}
		r.PlanName = p
	}
	if _, ok := f[FieldStatus]; ok {
		st, err := ParseStatus(d.asString(FieldStatus))
		if err != nil {
			d.fail(FieldStatus, err)
		}
		r.Status = st
	}
	if d.err != nil {
		return nil, d.err
	}
	return r, nil
}

// decoder накапливает первую ошибку разбора.
type decoder struct {
	fields docstore.Fields
	err    error
}

func (d *decoder) fail(field string, cause any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: field %s: %v", ErrMalformedRecord, field, cause)
	}
}

func (d *decoder) asString(field string) string {
	v, ok := d.fields[field]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(field, fmt.Sprintf("want string, got %T", v))
	}
	return s
}

func (d *decoder) asInt(field string) int {
	switch v := d.fields[field].(type) {
	case nil:
		return 0
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
		d.fail(field, fmt.Sprintf("want integer, got %v", v))
	default:
		d.fail(field, fmt.Sprintf("want integer, got %T", v))
	}
	return 0
}

func (d *decoder) asTime(field string) time.Time {
	switch v := d.fields[field].(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return v.UTC()
	case string:
		t, err := docstore.ParseTime(v)
		if err != nil {
			d.fail(field, err)
			return time.Time{}
		}
		return t.UTC()
	default:
		d.fail(field, fmt.Sprintf("want time, got %T", v))
	}
	return time.Time{}
}
