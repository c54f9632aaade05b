package models

import "time"

// SubscriptionInfo краткие сведения о подписке для отдачи клиенту.
type SubscriptionInfo struct {
	CUID             string     `json:"cuid"`
	PlanName         *string    `json:"plan_name"`
	PlanAmount       *int       `json:"plan_amount"`
	Status           *string    `json:"subscription_status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	IsActive         bool       `json:"is_active"`
}

// NewSubscriptionInfo строит SubscriptionInfo; при отсутствии записи подписка неактивна.
func NewSubscriptionInfo(cuid string, r *Record) *SubscriptionInfo {
	info := &SubscriptionInfo{CUID: cuid}
	if r == nil {
		return info
	}
	plan := string(r.PlanName)
	amount := r.PlanAmount
	status := string(r.Status)
	end := r.CurrentPeriodEnd

	info.PlanName = &plan
	info.PlanAmount = &amount
	info.Status = &status
	info.CurrentPeriodEnd = &end
	info.IsActive = r.Status.IsActive()
	return info
}
