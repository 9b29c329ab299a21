// Package middleware содержит HTTP middleware бота.
package middleware

import (
	"crypto/hmac"
	"net/http"
)

// SecretTokenHeader - заголовок, в котором платформа передаёт секрет вебхука.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// SecretToken пропускает только запросы с верным секретом вебхука.
// Пустой секрет отключает проверку.
type SecretToken struct {
	secret []byte
}

// NewSecretToken создаёт middleware проверки секрета.
func NewSecretToken(secret string) *SecretToken {
	return &SecretToken{secret: []byte(secret)}
}

// Middleware отвечает 401, если заголовок отсутствует или не совпадает.
func (s *SecretToken) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		got := []byte(r.Header.Get(SecretTokenHeader))
		if !hmac.Equal(got, s.secret) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
