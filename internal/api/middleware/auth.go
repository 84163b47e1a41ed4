// auth.go — JWT middleware аутентификации и проверки разрешений.
// Токены сервиса проверяются по собственному JWKS; токены внешнего IdP
// (если настроен) — по удалённому JWKS с сопоставлением локальному
// пользователю по preferred_username.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	apierrors "github.com/bigkaa/blockevidence/internal/api/errors"
	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/domain/rbac"
	"github.com/bigkaa/blockevidence/internal/service"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyPrincipal — аутентифицированный пользователь в контексте запроса.
	ContextKeyPrincipal contextKey = "principal"
)

// PrincipalResolver сопоставляет пользователя внешнего IdP с локальной
// учётной записью. Реализуется service.AuthService.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, username string) (*model.Principal, error)
}

// UserStatusChecker возвращает актуальные данные пользователя по ID
// токена сервиса: отключённый пользователь — service.ErrForbidden,
// удалённый — service.ErrNotFound. Реализуется service.AuthService.
type UserStatusChecker interface {
	ActivePrincipal(ctx context.Context, userID string) (*model.Principal, error)
}

// statusCacheSize — число пользователей с подтверждённым статусом в кэше.
const statusCacheSize = 4096

// remoteClaims — claims токена внешнего IdP.
type remoteClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
}

// RemoteOptions — параметры приёма токенов внешнего IdP.
type RemoteOptions struct {
	JWKSURL         string
	Issuer          string
	RefreshInterval time.Duration
	Resolver        PrincipalResolver
}

// JWTAuth — middleware JWT-аутентификации.
type JWTAuth struct {
	local        keyfunc.Keyfunc
	localIssuer  string
	remote       keyfunc.Keyfunc
	remoteIssuer string
	resolver     PrincipalResolver
	status       UserStatusChecker
	statusCache  *expirable.LRU[string, model.Principal]
	leeway       time.Duration
	logger       *slog.Logger
}

// NewJWTAuth создаёт middleware с JWKS сервиса (localJWKS) и, если задан
// remote.JWKSURL, с фоновым обновлением JWKS внешнего IdP.
func NewJWTAuth(
	localJWKS json.RawMessage,
	localIssuer string,
	remote RemoteOptions,
	leeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	local, err := keyfunc.NewJWKSetJSON(localJWKS)
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc для ключей сервиса: %w", err)
	}

	j := &JWTAuth{
		local:       local,
		localIssuer: localIssuer,
		leeway:      leeway,
		logger:      logger.With(slog.String("component", "jwt_auth")),
	}

	if remote.JWKSURL == "" {
		return j, nil
	}
	if remote.Resolver == nil {
		return nil, errors.New("для внешнего IdP требуется PrincipalResolver")
	}

	// NoErrorReturnFirstHTTPReq — стартуем даже если IdP ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(remote.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           remote.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			j.logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", remote.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	j.remote, err = keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	j.remoteIssuer = remote.Issuer
	j.resolver = remote.Resolver
	return j, nil
}

// WithStatusCheck включает проверку активности пользователя для токенов
// сервиса. Подтверждённый статус кэшируется на ttl: отключение учётной
// записи вступает в силу не позже чем через ttl.
func (j *JWTAuth) WithStatusCheck(checker UserStatusChecker, ttl time.Duration) *JWTAuth {
	j.status = checker
	j.statusCache = expirable.NewLRU[string, model.Principal](statusCacheSize, nil, ttl)
	return j
}

// Middleware возвращает HTTP middleware: извлекает Bearer token,
// проверяет подпись RS256 и помещает Principal в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				apierrors.Unauthorized(w, "Access token required")
				return
			}

			principal, err := j.authenticate(r.Context(), tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				if errors.Is(err, service.ErrForbidden) {
					apierrors.Forbidden(w, "User is disabled")
					return
				}
				apierrors.Unauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *principal)))
		})
	}
}

// authenticate проверяет токен сервиса, затем токен внешнего IdP.
func (j *JWTAuth) authenticate(ctx context.Context, tokenString string) (*model.Principal, error) {
	claims := &service.TokenClaims{}
	_, localErr := jwt.ParseWithClaims(tokenString, claims, j.local.KeyfuncCtx(ctx), j.parserOptions(j.localIssuer)...)
	if localErr == nil {
		if claims.Subject == "" || !rbac.IsValidRole(claims.Role) {
			return nil, errors.New("токен без sub или с неизвестной ролью")
		}
		if j.status != nil {
			return j.activePrincipal(ctx, claims.Subject)
		}
		return &model.Principal{ID: claims.Subject, Username: claims.PreferredUsername, Role: claims.Role}, nil
	}
	if j.remote == nil {
		return nil, localErr
	}

	rc := &remoteClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, rc, j.remote.KeyfuncCtx(ctx), j.parserOptions(j.remoteIssuer)...); err != nil {
		return nil, fmt.Errorf("локальный: %v; внешний: %w", localErr, err)
	}
	if rc.PreferredUsername == "" {
		return nil, errors.New("в токене IdP отсутствует preferred_username")
	}
	return j.resolver.ResolvePrincipal(ctx, rc.PreferredUsername)
}

// activePrincipal возвращает текущие данные пользователя: роль берётся
// из учётной записи, а не из claims выданного ранее токена.
func (j *JWTAuth) activePrincipal(ctx context.Context, userID string) (*model.Principal, error) {
	if p, ok := j.statusCache.Get(userID); ok {
		return &p, nil
	}
	p, err := j.status.ActivePrincipal(ctx, userID)
	if err != nil {
		return nil, err
	}
	j.statusCache.Add(userID, *p)
	return p, nil
}

func (j *JWTAuth) parserOptions(issuer string) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.leeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return opts
}

// bearerToken извлекает токен из заголовка Authorization.
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequirePermission возвращает middleware, требующий разрешение роли.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				apierrors.Unauthorized(w, "Access token required")
				return
			}
			if !rbac.HasPermission(p.Role, permission) {
				apierrors.Forbidden(w, "You do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// WithPrincipal помещает Principal в контекст.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// PrincipalFromContext извлекает Principal из контекста запроса.
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(model.Principal)
	return p, ok
}
