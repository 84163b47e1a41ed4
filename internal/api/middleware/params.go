// params.go — проверка идентификаторов в пути запроса.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/blockevidence/internal/api/errors"
)

// UUIDParam отвечает 404 с сообщением notFound, если параметр пути name
// не является UUID. Такой идентификатор не может существовать в БД.
// Подключается там, где параметр уже сопоставлен: r.Use внутри
// r.Route("/{name}") или r.With на конечном маршруте.
func UUIDParam(name, notFound string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := uuid.Parse(chi.URLParam(r, name)); err != nil {
				apierrors.NotFound(w, notFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
