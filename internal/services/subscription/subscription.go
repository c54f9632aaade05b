// Package services содержит бизнес-логику согласования локальных записей о
// подписках с тарифом пользователя в API идентификации.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscription-core/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-core/internal/models"
)

// ErrSubscriptionNotFound запись о подписке отсутствует.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionRepository хранилище записей о подписках.
type SubscriptionRepository interface {
	// Save проверяет и сохраняет запись, возвращает сохранённое состояние.
	Save(ctx context.Context, cuid string, rec models.Record) (*models.Record, error)
	// GetByUserID возвращает запись или nil.
	GetByUserID(ctx context.Context, cuid string) (*models.Record, error)
	// GetByStripeCustomerID возвращает первую запись с данным клиентом или nil.
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Record, error)
	// Delete удаляет запись.
	Delete(ctx context.Context, cuid string) (bool, error)
	// UpdateStatus меняет статус, false если записи нет.
	UpdateStatus(ctx context.Context, cuid string, status models.Status) (bool, error)
}

// IdentityClient клиент API идентификации.
type IdentityClient interface {
	ResolveIdentity(ctx context.Context, sessionToken string) (*models.UserIdentity, error)
	UpdateRemotePlan(ctx context.Context, cuid, planID string) (*models.UpdatePlanResult, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(ctx context.Context, key string) error
}

// Catalog справочник цен платёжного провайдера.
type Catalog interface {
	Consistent(rec models.Record) bool
}

// SubscriptionService согласует локальные записи с удалённым тарифом.
type SubscriptionService struct {
	repo     SubscriptionRepository
	identity IdentityClient
	cache    Cache
	cacheTTL time.Duration
	catalog  Catalog
	log      *slog.Logger
}

// Option настраивает SubscriptionService.
type Option func(*SubscriptionService)

// WithCache включает кэширование сведений о подписке.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *SubscriptionService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithCatalog включает проверку price id и суммы по справочнику.
func WithCatalog(c Catalog) Option {
	return func(s *SubscriptionService) { s.catalog = c }
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
func NewSubscriptionService(repo SubscriptionRepository, identity IdentityClient, log *slog.Logger, opts ...Option) *SubscriptionService {
	s := &SubscriptionService{
		repo:     repo,
		identity: identity,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(cuid string) string {
	return "subinfo:" + cuid
}

// Status определяет пользователя по сессионному токену и возвращает
// сведения о его подписке. Ошибки API идентификации возвращаются без изменений.
func (s *SubscriptionService) Status(ctx context.Context, sessionToken string) (*models.SubscriptionInfo, error) {
	u, err := s.identity.ResolveIdentity(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	return s.Info(ctx, u.CUID)
}

// Info возвращает сведения о подписке пользователя.
func (s *SubscriptionService) Info(ctx context.Context, cuid string) (*models.SubscriptionInfo, error) {
	const op = "services.Info"

	if s.cache != nil {
		var cached models.SubscriptionInfo
		found, err := s.cache.Get(ctx, cacheKey(cuid), &cached)
		if err != nil {
			s.log.Warn("failed to read from cache", sl.Op(op), sl.Err(err))
		}
		if found {
			s.log.Debug("subscription info from cache", sl.Op(op), slog.String("cuid", cuid))
			return &cached, nil
		}
	}

	rec, err := s.repo.GetByUserID(ctx, cuid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	info := models.NewSubscriptionInfo(cuid, rec)

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey(cuid), info, s.cacheTTL); err != nil {
			s.log.Warn("failed to add to cache", sl.Op(op), sl.Err(err))
		}
	}
	return info, nil
}

// Apply сохраняет запись и выставляет удалённый тариф: тариф записи для
// активной подписки и пустой для остальных. Ошибка удалённого вызова
// возвращается вместе с уже сохранённой записью, откат не выполняется.
func (s *SubscriptionService) Apply(ctx context.Context, cuid string, rec models.Record) (*models.Record, error) {
	const op = "services.Apply"

	if s.catalog != nil && !s.catalog.Consistent(rec) {
		return nil, fmt.Errorf("%s: %w: price %q does not match plan %s/%d",
			op, models.ErrValidation, rec.StripePriceID, rec.PlanName, rec.PlanAmount)
	}

	saved, err := s.repo.Save(ctx, cuid, rec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, cuid)
	s.log.Info("subscription saved", sl.Op(op), slog.String("cuid", cuid),
		slog.String("plan", string(saved.PlanName)), slog.String("status", string(saved.Status)))

	if err := s.pushPlan(ctx, cuid, remotePlan(saved)); err != nil {
		return saved, fmt.Errorf("%s: %w", op, err)
	}
	return saved, nil
}

// UpdateStatusByCustomer меняет статус подписки, найденной по клиенту
// платёжного провайдера, и синхронизирует удалённый тариф.
func (s *SubscriptionService) UpdateStatusByCustomer(ctx context.Context, customerID string, status models.Status) (*models.Record, error) {
	const op = "services.UpdateStatusByCustomer"

	rec, err := s.repo.GetByStripeCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%s: customer %s: %w", op, customerID, ErrSubscriptionNotFound)
	}

	ok, err := s.repo.UpdateStatus(ctx, rec.ID, status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		// запись удалили между чтением и обновлением
		return nil, fmt.Errorf("%s: %s: %w", op, rec.ID, ErrSubscriptionNotFound)
	}
	s.invalidate(ctx, rec.ID)
	rec.Status = status

	if err := s.pushPlan(ctx, rec.ID, remotePlan(rec)); err != nil {
		return rec, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// Cancel переводит подписку в canceled и снимает удалённый тариф.
// Для отсутствующей записи возвращает false без ошибки.
func (s *SubscriptionService) Cancel(ctx context.Context, cuid string) (bool, error) {
	const op = "services.Cancel"

	ok, err := s.repo.UpdateStatus(ctx, cuid, models.StatusCanceled)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return false, nil
	}
	s.invalidate(ctx, cuid)

	if err := s.pushPlan(ctx, cuid, models.PlanNone); err != nil {
		return true, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Remove удаляет локальную запись. Удалённый тариф не меняется.
func (s *SubscriptionService) Remove(ctx context.Context, cuid string) (bool, error) {
	const op = "services.Remove"

	ok, err := s.repo.Delete(ctx, cuid)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, cuid)
	return ok, nil
}

func (s *SubscriptionService) pushPlan(ctx context.Context, cuid string, plan models.Plan) error {
	const op = "services.pushPlan"
	if _, err := s.identity.UpdateRemotePlan(ctx, cuid, string(plan)); err != nil {
		s.log.Error("failed to update remote plan", sl.Op(op),
			slog.String("cuid", cuid), slog.String("plan", string(plan)), sl.Err(err))
		return err
	}
	return nil
}

func (s *SubscriptionService) invalidate(ctx context.Context, cuid string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cacheKey(cuid)); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("cuid", cuid), sl.Err(err))
	}
}

func remotePlan(rec *models.Record) models.Plan {
	if rec.Status.IsActive() {
		return rec.PlanName
	}
	return models.PlanNone
}
