// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/blockevidence/internal/repository"
)

// Категории ошибок. Проверяются через errors.Is и отображаются
// в HTTP-статусы на границе API.
var (
	// ErrValidation — некорректные входные данные.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrForbidden — недостаточно прав.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrConflict — конфликт уникальности или состояния.
	ErrConflict = errors.New("конфликт состояния")
	// ErrUnauthorized — неверные учётные данные.
	ErrUnauthorized = errors.New("требуется аутентификация")
)

// Error — ошибка сервиса с сообщением для клиента.
// Kind — одна из категорий выше.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

// PublicMessage возвращает сообщение для клиента, если err — ошибка сервиса.
func PublicMessage(err error) (string, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Message, true
	}
	return "", false
}

func validationError(msg string) error { return &Error{Kind: ErrValidation, Message: msg} }
func notFoundError(msg string) error   { return &Error{Kind: ErrNotFound, Message: msg} }
func forbiddenError(msg string) error  { return &Error{Kind: ErrForbidden, Message: msg} }
func conflictError(msg string) error   { return &Error{Kind: ErrConflict, Message: msg} }

// repoError переводит ошибки репозитория в ошибки сервиса.
// notFoundMsg — сообщение клиенту для ErrNotFound; прочие ошибки
// оборачиваются с контекстом op.
func repoError(err error, op, notFoundMsg string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFoundError(notFoundMsg)
	case errors.Is(err, repository.ErrConflict):
		return conflictError("Resource was modified concurrently")
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
