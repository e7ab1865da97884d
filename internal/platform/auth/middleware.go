package auth

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

const (
	devSubject    = "dev-user"
	defaultTenant = "default"

	msgNotAuthenticated = "Authentication Required."
)

type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey selects HS256 validation instead of JWKS.
	SigningKey []byte
	Skipper    middleware.Skipper
}

func unauthorized() error {
	return echo.NewHTTPError(http.StatusUnauthorized, msgNotAuthenticated)
}

// bearerToken extracts the credential from an "Authorization: Bearer <token>"
// header.
func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", unauthorized()
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", unauthorized()
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", unauthorized()
	}
	return token, nil
}

func setIdentity(c echo.Context, id Identity) {
	ctx := WithIdentity(c.Request().Context(), id)
	c.SetRequest(c.Request().WithContext(ctx))
}

// keyFunc picks the HMAC key or a JWKS-backed resolver. Without an explicit
// JWKS URL the issuer's discovery document is consulted once, on first use.
func (cfg JWTConfig) keyFunc() jwt.Keyfunc {
	if len(cfg.SigningKey) > 0 {
		return func(t *jwt.Token) (interface{}, error) {
			return cfg.SigningKey, nil
		}
	}

	var (
		once  sync.Once
		cache *JWKSCache
		err   error
	)
	return func(t *jwt.Token) (interface{}, error) {
		once.Do(func() {
			url := cfg.JWKSURL
			if url == "" {
				var p *OIDCProvider
				if p, err = NewOIDCProvider(cfg.Issuer); err != nil {
					return
				}
				url = p.JWKSURI
			}
			cache = NewJWKSCache(url, defaultJWKSCacheTTL)
		})
		if err != nil {
			return nil, fmt.Errorf("resolve JWKS: %w", err)
		}
		return jwksKeyFunc(cache)(t)
	}
}

// JWTMiddleware validates bearer tokens and stores the caller Identity on the
// request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	methods := []string{"RS256"}
	if len(cfg.SigningKey) > 0 {
		methods = []string{"HS256"}
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	keyFunc := cfg.keyFunc()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc, opts...)
			if err != nil || !token.Valid || claims.Subject == "" {
				zerolog.Ctx(c.Request().Context()).Debug().Err(err).Msg("rejected bearer token")
				return unauthorized()
			}

			tenant := claims.TenantID
			if tenant == "" {
				tenant = defaultTenant
			}
			setIdentity(c, Identity{Subject: claims.Subject, TenantID: tenant})
			return next(c)
		}
	}
}

// DevAuthMiddleware accepts any non-empty bearer token as the development
// user. Requests without a credential are still rejected.
func DevAuthMiddleware(skipper middleware.Skipper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			if _, err := bearerToken(c); err != nil {
				return err
			}
			setIdentity(c, Identity{Subject: devSubject, TenantID: defaultTenant})
			return next(c)
		}
	}
}
