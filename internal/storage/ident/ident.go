// Пакет ident — генерация идентификаторов и токенов доступа.
// Оба значения — криптостойкие случайные байты в hex, выполняют роль
// неугадываемой capability-ссылки для клиентов.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// IdentifierBytes — энтропия идентификатора (256 бит → 64 hex-символа)
	IdentifierBytes = 32
	// TokenBytes — энтропия токена доступа (128 бит → 32 hex-символа)
	TokenBytes = 16
)

// NewIdentifier генерирует основной идентификатор хранения.
func NewIdentifier() (string, error) {
	return randomHex(IdentifierBytes)
}

// NewAccessToken генерирует токен доступа, независимый от идентификатора.
func NewAccessToken() (string, error) {
	return randomHex(TokenBytes)
}

// IsHex проверяет, что s — строка из hex-символов длиной ровно n.
// Используется для отсечения заведомо невалидных ссылок до обращения к диску.
func IsHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации случайных байт: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
