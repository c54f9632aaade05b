// Package repository хранит записи о подписках пользователей в документном
// хранилище. Ключ документа равен cuid пользователя. Репозиторий отвечает за
// семантику create-or-update и временные метки created/updated.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscription-core/internal/docstore"
	"github.com/magabrotheeeer/subscription-core/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-core/internal/models"
)

// Collection коллекция записей о подписках.
const Collection = "user_subscriptions"

// ErrEmptyUserID пустой cuid.
var ErrEmptyUserID = errors.New("user id is required")

// Repository операции над записями о подписках.
type Repository struct {
	store   docstore.Store
	log     *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// Option настраивает Repository.
type Option func(*Repository)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithLogger задаёт логгер.
func WithLogger(log *slog.Logger) Option {
	return func(r *Repository) { r.log = log }
}

// WithTimeout ограничивает длительность каждого обращения к хранилищу.
func WithTimeout(d time.Duration) Option {
	return func(r *Repository) { r.timeout = d }
}

// New создаёт репозиторий поверх переданного хранилища.
func New(store docstore.Store, opts ...Option) *Repository {
	r := &Repository{
		store: store,
		log:   sl.Discard(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// CreateOrUpdate создаёт запись или сливает fields с существующей.
//
// Для новой записи проставляются created и updated, для существующей только
// updated, а переданный created отбрасывается. Возвращается запись, заново
// прочитанная из хранилища.
func (r *Repository) CreateOrUpdate(ctx context.Context, cuid string, fields docstore.Fields) (*models.Record, error) {
	const op = "repository.CreateOrUpdate"
	if cuid == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyUserID)
	}

	data := fields.Clone()
	delete(data, models.FieldID)
	now := r.now().UTC()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, exists, err := r.store.Get(ctx, Collection, cuid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if exists {
		delete(data, models.FieldCreated)
		data[models.FieldUpdated] = now
		// ErrNotFound здесь означает гонку с удалением и не обрабатывается
		if err := r.store.Update(ctx, Collection, cuid, data); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		r.log.Debug("subscription updated", sl.Op(op), slog.String("cuid", cuid))
	} else {
		data[models.FieldCreated] = now
		data[models.FieldUpdated] = now
		if err := r.store.Set(ctx, Collection, cuid, data, false); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		r.log.Info("subscription created", sl.Op(op), slog.String("cuid", cuid))
	}

	rec, err := r.getByUserID(ctx, cuid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%s: %s disappeared after write: %w", op, cuid, docstore.ErrNotFound)
	}
	return rec, nil
}

// Save проверяет запись и сохраняет её через CreateOrUpdate.
func (r *Repository) Save(ctx context.Context, cuid string, rec models.Record) (*models.Record, error) {
	const op = "repository.Save"
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r.CreateOrUpdate(ctx, cuid, rec.Fields())
}

// GetByUserID возвращает запись по cuid или nil, если её нет.
func (r *Repository) GetByUserID(ctx context.Context, cuid string) (*models.Record, error) {
	const op = "repository.GetByUserID"
	if cuid == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyUserID)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rec, err := r.getByUserID(ctx, cuid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

func (r *Repository) getByUserID(ctx context.Context, cuid string) (*models.Record, error) {
	fields, ok, err := r.store.Get(ctx, Collection, cuid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return models.RecordFromFields(cuid, fields)
}

// GetByStripeCustomerID ищет запись по идентификатору клиента платёжного
// провайдера. Уникальность поля хранилищем не гарантируется: при дубликатах
// возвращается первое совпадение.
func (r *Repository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Record, error) {
	const op = "repository.GetByStripeCustomerID"

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	docs, err := r.store.Query(ctx, Collection, models.FieldStripeCustomerID, docstore.OpEqual, customerID, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	rec, err := models.RecordFromFields(docs[0].ID, docs[0].Fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// Delete удаляет запись. Отсутствие записи считается успехом,
// false возвращается только вместе с ошибкой хранилища.
func (r *Repository) Delete(ctx context.Context, cuid string) (bool, error) {
	const op = "repository.Delete"
	if cuid == "" {
		return false, fmt.Errorf("%s: %w", op, ErrEmptyUserID)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.store.Delete(ctx, Collection, cuid); err != nil {
		r.log.Error("failed to delete subscription", sl.Op(op), slog.String("cuid", cuid), sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}
	r.log.Info("subscription deleted", sl.Op(op), slog.String("cuid", cuid))
	return true, nil
}

// UpdateStatus меняет статус подписки и updated.
// Для несуществующей записи возвращает false без ошибки и ничего не создаёт.
func (r *Repository) UpdateStatus(ctx context.Context, cuid string, status models.Status) (bool, error) {
	const op = "repository.UpdateStatus"
	if cuid == "" {
		return false, fmt.Errorf("%s: %w", op, ErrEmptyUserID)
	}
	if _, err := models.ParseStatus(string(status)); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.store.Update(ctx, Collection, cuid, docstore.Fields{
		models.FieldStatus:  string(status),
		models.FieldUpdated: r.now().UTC(),
	})
	if errors.Is(err, docstore.ErrNotFound) {
		r.log.Warn("subscription not found for status update", sl.Op(op), slog.String("cuid", cuid))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	r.log.Info("subscription status updated", sl.Op(op),
		slog.String("cuid", cuid), slog.String("status", string(status)))
	return true, nil
}
