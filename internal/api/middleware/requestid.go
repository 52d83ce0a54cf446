// requestid.go — присвоение идентификатора каждому запросу (X-Request-ID).
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader — заголовок с идентификатором запроса.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen — входящие идентификаторы длиннее игнорируются.
const maxRequestIDLen = 128

type requestIDKey struct{}

// RequestID возвращает middleware, который берёт X-Request-ID из запроса
// (если он есть и разумной длины) или генерирует UUID v4. Идентификатор
// кладётся в контекст и в заголовок ответа.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.New().String()
			}

			w.Header().Set(RequestIDHeader, id)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext возвращает идентификатор запроса или пустую строку.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
