// Package billing сопоставляет тарифы с идентификаторами цен платёжного провайдера.
package billing

import (
	"github.com/magabrotheeeer/subscription-core/internal/config"
	"github.com/magabrotheeeer/subscription-core/internal/models"
)

// Catalog двусторонний справочник тариф <-> price id.
type Catalog struct {
	byPlan  map[models.Plan]string
	byPrice map[string]models.Plan
}

// NewCatalog строит справочник из конфигурации. Пустые price id пропускаются.
func NewCatalog(ids config.PriceIDs) *Catalog {
	c := &Catalog{
		byPlan:  make(map[models.Plan]string, 3),
		byPrice: make(map[string]models.Plan, 3),
	}
	c.add(models.PlanBasic, ids.Basic)
	c.add(models.PlanStandard, ids.Standard)
	c.add(models.PlanPro, ids.Pro)
	return c
}

func (c *Catalog) add(plan models.Plan, priceID string) {
	if priceID == "" {
		return
	}
	c.byPlan[plan] = priceID
	// при совпадающих price id побеждает первый тариф
	if _, ok := c.byPrice[priceID]; !ok {
		c.byPrice[priceID] = plan
	}
}

// PriceIDForPlan возвращает price id тарифа.
func (c *Catalog) PriceIDForPlan(plan models.Plan) (string, bool) {
	id, ok := c.byPlan[plan]
	return id, ok
}

// PlanForPriceID возвращает тариф по price id.
func (c *Catalog) PlanForPriceID(priceID string) (models.Plan, bool) {
	if priceID == "" {
		return models.PlanNone, false
	}
	p, ok := c.byPrice[priceID]
	return p, ok
}

// Empty сообщает, что в справочнике нет ни одного price id.
func (c *Catalog) Empty() bool {
	return len(c.byPrice) == 0
}

// Consistent проверяет, что price id и сумма записи соответствуют её тарифу.
// Неизвестный справочнику price id проверку проходит.
func (c *Catalog) Consistent(rec models.Record) bool {
	plan, ok := c.PlanForPriceID(rec.StripePriceID)
	if !ok {
		return true
	}
	return plan == rec.PlanName && plan.Amount() == rec.PlanAmount
}
