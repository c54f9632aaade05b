package identity

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials/idtoken"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// CredentialsFunc получает источник ID-токенов для заданной audience.
type CredentialsFunc func(ctx context.Context, audience string) (oauth2.TokenSource, error)

// DefaultCredentials использует учётные данные Google по умолчанию
// (ADC или сервисный аккаунт окружения).
func DefaultCredentials(ctx context.Context, audience string) (oauth2.TokenSource, error) {
	creds, err := idtoken.NewCredentials(&idtoken.Options{Audience: audience})
	if err != nil {
		return nil, err
	}
	return &providerSource{ctx: context.WithoutCancel(ctx), provider: creds}, nil
}

// providerSource адаптирует auth.TokenProvider к oauth2.TokenSource.
type providerSource struct {
	ctx      context.Context
	provider auth.TokenProvider
}

func (s *providerSource) Token() (*oauth2.Token, error) {
	return s.TokenContext(s.ctx)
}

// TokenContext получает токен в рамках ctx конкретного вызова.
func (s *providerSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	t, err := s.provider.Token(ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: t.Value, TokenType: t.Type, Expiry: t.Expiry}, nil
}

// contextTokenSource источник, который умеет получать токен с ctx вызова.
type contextTokenSource interface {
	TokenContext(ctx context.Context) (*oauth2.Token, error)
}

// credentials кэширует источник токенов на всё время жизни клиента.
// Источник заполняется один раз при первом обращении, ошибка не кэшируется.
type credentials struct {
	audience string
	acquire  CredentialsFunc

	mu     sync.Mutex
	source oauth2.TokenSource
	group  singleflight.Group
}

func (c *credentials) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	c.mu.Lock()
	src := c.source
	c.mu.Unlock()
	if src != nil {
		return src, nil
	}

	// получение общее для всех ожидающих, поэтому отмена одного вызова
	// его не прерывает; каждый вызов ждёт не дольше своего ctx
	acquireCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("source", func() (any, error) {
		c.mu.Lock()
		if c.source != nil {
			defer c.mu.Unlock()
			return c.source, nil
		}
		c.mu.Unlock()

		// блокировка не держится во время получения учётных данных
		src, err := c.acquire(acquireCtx, c.audience)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.source = src
		c.mu.Unlock()
		return src, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(oauth2.TokenSource), nil
	}
}

// bearer возвращает свежий ID-токен. Токены между вызовами не переиспользуются.
// Ожидание токена ограничено ctx.
func (c *credentials) bearer(ctx context.Context) (string, error) {
	src, err := c.tokenSource(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire credentials: %w", err)
	}
	tok, err := fetchToken(ctx, src)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("fetch token: empty token")
	}
	return tok.AccessToken, nil
}

func fetchToken(ctx context.Context, src oauth2.TokenSource) (*oauth2.Token, error) {
	type result struct {
		tok *oauth2.Token
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var r result
		if cs, ok := src.(contextTokenSource); ok {
			r.tok, r.err = cs.TokenContext(ctx)
		} else {
			r.tok, r.err = src.Token()
		}
		ch <- r
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.tok, r.err
	}
}
