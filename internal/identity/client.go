// Package identity клиент API идентификации: определение пользователя по
// сессионному токену и изменение его тарифа на удалённой стороне.
// Запросы подписываются ID-токеном Google IAM.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/magabrotheeeer/subscription-core/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-core/internal/models"
)

const (
	DefaultBaseURL  = "https://calil.jp/infrastructure"
	DefaultAudience = "https://libmuteki2.appspot.com"
	DefaultTimeout  = 30 * time.Second

	pathUserStat   = "/get_userstat_v2"
	pathUpdatePlan = "/update_user_plan"

	maxBodySize = 1 << 20
)

// Config параметры подключения к API.
type Config struct {
	BaseURL  string
	Audience string
	Timeout  time.Duration
}

// BreakerSettings параметры circuit breaker.
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	OpenTimeout      time.Duration
	FailureThreshold uint32
}

// Client клиент API идентификации.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	creds      *credentials
	log        *slog.Logger
	metrics    *Metrics
	breaker    *gobreaker.CircuitBreaker[*response]
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCredentials подменяет способ получения учётных данных.
func WithCredentials(fn CredentialsFunc) Option {
	return func(c *Client) { c.creds.acquire = fn }
}

// WithLogger задаёт логгер.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics включает запись метрик.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBreaker включает circuit breaker. Отказом считаются только ошибки
// транспорта и ответы 5xx. Повторных попыток клиент не делает.
func WithBreaker(s BreakerSettings) Option {
	return func(c *Client) {
		c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
			Name:        "identity",
			MaxRequests: s.MaxRequests,
			Interval:    s.Interval,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.log.Warn("circuit breaker state changed",
					slog.String("name", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		})
	}
}

// New создаёт клиент. Пустые поля cfg заменяются значениями по умолчанию.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		creds:      &credentials{audience: cfg.Audience, acquire: DefaultCredentials},
		log:        sl.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveIdentity возвращает пользователя по сессионному токену session_v2.
func (c *Client) ResolveIdentity(ctx context.Context, sessionToken string) (*models.UserIdentity, error) {
	start := time.Now()
	u, err := c.resolveIdentity(ctx, sessionToken)
	c.metrics.observe("resolve_identity", start, err)
	return u, err
}

func (c *Client) resolveIdentity(ctx context.Context, sessionToken string) (*models.UserIdentity, error) {
	const op = "identity.ResolveIdentity"
	if sessionToken == "" {
		return nil, validationError("session_v2 is required", nil)
	}

	resp, err := c.post(ctx, pathUserStat, map[string]string{"session_v2": sessionToken})
	if err != nil {
		c.log.Warn("identity request failed", sl.Op(op), sl.Err(err))
		return nil, err
	}

	if resp.status == http.StatusNotFound && isNoUser(resp.body) {
		return nil, &Error{
			Kind:       KindNotLoggedIn,
			StatusCode: http.StatusNotFound,
			Message:    "user not logged in or user data not found",
			Detail:     string(resp.body),
		}
	}
	if !resp.ok() {
		c.log.Warn("identity API returned error", sl.Op(op), slog.Int("status", resp.status))
		return nil, upstreamError(resp.status, resp.body)
	}

	u, err := models.ParseUserIdentity(resp.body)
	if err != nil {
		e := validationError("invalid user identity response", err)
		e.Detail = string(resp.body)
		return nil, e
	}
	c.log.Debug("identity resolved", sl.Op(op), slog.String("cuid", u.CUID))
	return u, nil
}

// UpdateRemotePlan устанавливает тариф пользователя на стороне API.
// Пустой planID снимает тариф.
func (c *Client) UpdateRemotePlan(ctx context.Context, cuid, planID string) (*models.UpdatePlanResult, error) {
	start := time.Now()
	r, err := c.updateRemotePlan(ctx, cuid, planID)
	c.metrics.observe("update_remote_plan", start, err)
	return r, err
}

func (c *Client) updateRemotePlan(ctx context.Context, cuid, planID string) (*models.UpdatePlanResult, error) {
	const op = "identity.UpdateRemotePlan"
	if cuid == "" {
		return nil, validationError("cuid is required", nil)
	}
	plan, err := models.ParsePlan(planID)
	if err != nil {
		return nil, validationError(fmt.Sprintf("invalid plan_id: %s", planID), err)
	}

	resp, err := c.post(ctx, pathUpdatePlan, map[string]string{"cuid": cuid, "plan_id": string(plan)})
	if err != nil {
		c.log.Warn("identity request failed", sl.Op(op), slog.String("cuid", cuid), sl.Err(err))
		return nil, err
	}

	if resp.status == http.StatusNotFound {
		return nil, &Error{
			Kind:       KindUserNotFound,
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("user with cuid '%s' not found", cuid),
			Detail:     string(resp.body),
		}
	}
	if !resp.ok() {
		c.log.Warn("identity API returned error", sl.Op(op), slog.Int("status", resp.status))
		return nil, upstreamError(resp.status, resp.body)
	}

	r, err := models.ParseUpdatePlanResult(resp.body)
	if err != nil {
		e := validationError("invalid update plan response", err)
		e.Detail = string(resp.body)
		return nil, e
	}
	c.log.Info("remote plan updated", sl.Op(op), slog.String("cuid", cuid), slog.String("plan_id", r.PlanID))
	return r, nil
}

type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// errServerStatus помечает ответ 5xx как отказ для circuit breaker.
var errServerStatus = errors.New("server error status")

// post отправляет JSON-запрос. Ошибка возвращается только когда ответа нет.
func (c *Client) post(ctx context.Context, path string, payload any) (*response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, unexpectedError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.creds.bearer(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, unavailableError(err)
		}
		return nil, unauthorizedError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, unexpectedError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	if c.breaker == nil {
		resp, err := c.send(req)
		if err != nil {
			return nil, unavailableError(err)
		}
		return resp, nil
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		resp, err := c.send(req)
		if err != nil {
			return nil, err
		}
		if resp.status >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	switch {
	case errors.Is(err, errServerStatus):
		return resp, nil
	case err != nil:
		return nil, unavailableError(err)
	}
	return resp, nil
}

func (c *Client) send(req *http.Request) (*response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	return &response{status: resp.StatusCode, body: body}, nil
}

func isNoUser(body []byte) bool {
	var probe struct {
		Stat string `json:"stat"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Stat == "nouser"
}
