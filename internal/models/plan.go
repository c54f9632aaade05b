package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Plan тариф подписки. Пустое значение означает отсутствие платного тарифа.
type Plan string

const (
	PlanNone     Plan = ""
	PlanBasic    Plan = "Basic"
	PlanStandard Plan = "Standard"
	PlanPro      Plan = "Pro"
)

// AllowedPlanAmounts допустимые суммы тарифов.
var AllowedPlanAmounts = []int{1000, 2000, 5000}

var planAmounts = map[Plan]int{
	PlanBasic:    1000,
	PlanStandard: 2000,
	PlanPro:      5000,
}

// ParsePlan преобразует строку в Plan, в том числе пустую строку в PlanNone.
func ParsePlan(s string) (Plan, error) {
	switch p := Plan(s); p {
	case PlanNone, PlanBasic, PlanStandard, PlanPro:
		return p, nil
	default:
		return "", fmt.Errorf("%w: invalid plan_id %q", ErrValidation, s)
	}
}

// IsPaid сообщает, является ли тариф платным.
func (p Plan) IsPaid() bool {
	_, ok := planAmounts[p]
	return ok
}

// Amount сумма тарифа, 0 для PlanNone.
func (p Plan) Amount() int {
	return planAmounts[p]
}

func (p Plan) String() string {
	return string(p)
}

// UnmarshalJSON допускает только известные тарифы. null не считается пустым тарифом.
func (p *Plan) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return fmt.Errorf("%w: plan_id must be a string, got null", ErrValidation)
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: plan_id: %v", ErrValidation, err)
	}
	parsed, err := ParsePlan(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ValidatePlanAmount проверяет, что сумма входит в AllowedPlanAmounts.
func ValidatePlanAmount(amount int) error {
	if !slices.Contains(AllowedPlanAmounts, amount) {
		return fmt.Errorf("%w: invalid plan amount %d, must be one of %v", ErrValidation, amount, AllowedPlanAmounts)
	}
	return nil
}
