package identity

import (
	"context"

	"github.com/magabrotheeeer/subscription-core/internal/models"
)

// Result результат асинхронного вызова.
type Result[T any] struct {
	Value T
	Err   error
}

// ResolveIdentityAsync запускает ResolveIdentity в отдельной горутине.
// Канал получает ровно одно значение и закрывается.
func (c *Client) ResolveIdentityAsync(ctx context.Context, sessionToken string) <-chan Result[*models.UserIdentity] {
	return async(func() (*models.UserIdentity, error) {
		return c.ResolveIdentity(ctx, sessionToken)
	})
}

// UpdateRemotePlanAsync запускает UpdateRemotePlan в отдельной горутине.
func (c *Client) UpdateRemotePlanAsync(ctx context.Context, cuid, planID string) <-chan Result[*models.UpdatePlanResult] {
	return async(func() (*models.UpdatePlanResult, error) {
		return c.UpdateRemotePlan(ctx, cuid, planID)
	})
}

func async[T any](fn func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		defer close(ch)
		v, err := fn()
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}
