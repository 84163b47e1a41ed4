// Пакет errors — ответы с ошибками в едином формате API.
// Формат: {"error": "...", "details": "..."}; details необязателен.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/bigkaa/blockevidence/internal/service"
)

// errorBody — тело ответа ошибки.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteError записывает ответ ошибки.
func WriteError(w http.ResponseWriter, statusCode int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message, Details: details})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, "")
}

// ValidationDetails — 400 с уточнением причины.
func ValidationDetails(w http.ResponseWriter, message, details string) {
	WriteError(w, http.StatusBadRequest, message, details)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, "")
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, "")
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, "")
}

// Conflict — 409 конфликт состояния.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, "")
}

// TooManyRequests — 429 превышен лимит запросов.
func TooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, "")
}

// InternalError — 500 внутренняя ошибка. Подробности клиенту не передаются.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, "")
}

// StatusOf возвращает HTTP-статус для ошибки сервисного слоя.
func StatusOf(err error) int {
	switch {
	case stderrors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case stderrors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case stderrors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case stderrors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, service.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromService записывает ответ для ошибки сервисного слоя.
// Непредвиденные ошибки логируются, клиент получает fallback.
func FromService(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), fallback,
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		InternalError(w, fallback)
		return
	}

	msg, ok := service.PublicMessage(err)
	if !ok {
		msg = http.StatusText(status)
	}
	WriteError(w, status, msg, "")
}
