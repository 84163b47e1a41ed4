// auth.go — регистрация, вход и справочник пользователей.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/domain/rbac"
	"github.com/bigkaa/blockevidence/internal/repository"
)

// minPasswordLength — минимальная длина пароля.
const minPasswordLength = 8

// dummyHash сравнивается при неизвестном пользователе, чтобы время
// ответа не выдавало существование учётной записи.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("blockevidence-dummy"), bcrypt.MinCost)

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Username    string
	Email       string
	FullName    string
	Password    string
	Role        string
	BadgeNumber string
	Department  string
}

// LoginResult — результат входа.
type LoginResult struct {
	Token string
	User  *model.User
}

// AuthService — учётные записи пользователей и выпуск токенов.
type AuthService struct {
	store      *Store
	tokens     *TokenIssuer
	bcryptCost int
	logger     *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(store *Store, tokens *TokenIssuer, logger *slog.Logger) *AuthService {
	return &AuthService{
		store:      store,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger.With(slog.String("component", "auth_service")),
	}
}

// SetBcryptCost задаёт стоимость bcrypt (тесты, сидирование).
func (s *AuthService) SetBcryptCost(cost int) {
	s.bcryptCost = cost
}

// HashPassword возвращает bcrypt-хеш пароля.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("хеширование пароля: %w", err)
	}
	return string(hash), nil
}

// Register создаёт учётную запись. Роль admin не может быть выбрана
// при самостоятельной регистрации.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)

	switch {
	case in.Username == "" || in.Email == "" || in.FullName == "" || in.Password == "":
		return nil, validationError("Username, email, full name and password are required")
	case len(in.Password) < minPasswordLength:
		return nil, validationError(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, validationError("Invalid email address")
	}

	role := in.Role
	if role == "" {
		role = rbac.RoleOfficer
	}
	if !rbac.IsValidRole(role) {
		return nil, validationError(fmt.Sprintf("Unknown role %q, allowed: %s", role, rbac.RoleList()))
	}
	if role == rbac.RoleAdmin {
		return nil, forbiddenError("The admin role cannot be self-assigned")
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        strings.ToLower(in.Email),
		FullName:     in.FullName,
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
	}
	if v := strings.TrimSpace(in.BadgeNumber); v != "" {
		u.BadgeNumber.SetValid(v)
	}
	if v := strings.TrimSpace(in.Department); v != "" {
		u.Department.SetValid(v)
	}

	if err := s.store.Repos().Users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, conflictError("Username or email is already registered")
		}
		return nil, fmt.Errorf("регистрация пользователя: %w", err)
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
		slog.String("role", u.Role),
	)
	return u, nil
}

// Login проверяет пароль и выпускает токен.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	u, err := s.store.Repos().Users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("вход пользователя: %w", err)
	}

	hash := dummyHash
	if u != nil {
		hash = []byte(u.PasswordHash)
	}
	if cmpErr := bcrypt.CompareHashAndPassword(hash, []byte(password)); cmpErr != nil || u == nil || !u.IsActive {
		s.logger.Info("Неудачная попытка входа", slog.String("username", username))
		return nil, &Error{Kind: ErrUnauthorized, Message: "Invalid username or password"}
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: u}, nil
}

// Me возвращает учётную запись вызывающего.
func (s *AuthService) Me(ctx context.Context, p model.Principal) (*model.User, error) {
	u, err := s.store.Repos().Users.GetByID(ctx, p.ID)
	if err != nil {
		return nil, repoError(err, "получение пользователя", "User not found")
	}
	return u, nil
}

// ListUsers возвращает активных пользователей (получатели передач).
func (s *AuthService) ListUsers(ctx context.Context) ([]model.UserSummary, error) {
	users, err := s.store.Repos().Users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("список пользователей: %w", err)
	}
	result := make([]model.UserSummary, 0, len(users))
	for _, u := range users {
		result = append(result, u.Summary())
	}
	return result, nil
}

// ResolvePrincipal сопоставляет имя пользователя внешнего IdP
// с локальной учётной записью.
func (s *AuthService) ResolvePrincipal(ctx context.Context, username string) (*model.Principal, error) {
	u, err := s.store.Repos().Users.GetByUsername(ctx, username)
	if err != nil {
		return nil, repoError(err, "сопоставление пользователя", "User not found")
	}
	if !u.IsActive {
		return nil, forbiddenError("User is disabled")
	}
	return &model.Principal{ID: u.ID, Username: u.Username, Role: u.Role}, nil
}

// ActivePrincipal возвращает актуальную роль пользователя по ID токена
// сервиса и отказывает отключённым учётным записям.
func (s *AuthService) ActivePrincipal(ctx context.Context, userID string) (*model.Principal, error) {
	u, err := s.store.Repos().Users.GetByID(ctx, userID)
	if err != nil {
		return nil, repoError(err, "проверка статуса пользователя", "User not found")
	}
	if !u.IsActive {
		return nil, forbiddenError("User is disabled")
	}
	return &model.Principal{ID: u.ID, Username: u.Username, Role: u.Role}, nil
}
