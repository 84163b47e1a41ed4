// token.go — выпуск JWT (RS256) и публикация открытого ключа в формате JWKS.
package service

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// TokenClaims — claims локально выпускаемого токена.
type TokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Role              string `json:"role"`
}

// TokenIssuer подписывает токены доступа RSA-ключом сервиса.
type TokenIssuer struct {
	key    *rsa.PrivateKey
	kid    string
	issuer string
	ttl    time.Duration
	jwks   json.RawMessage
	now    func() time.Time
}

// NewTokenIssuer загружает RSA-ключ из PEM-файла keyPath.
// Пустой путь — эфемерный ключ: токены перестают быть валидными
// после перезапуска.
func NewTokenIssuer(keyPath, issuer string, ttl time.Duration, logger *slog.Logger) (*TokenIssuer, error) {
	var key *rsa.PrivateKey
	if keyPath == "" {
		generated, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("генерация RSA-ключа: %w", err)
		}
		key = generated
		logger.Warn("BE_JWT_PRIVATE_KEY_PATH не задан, используется эфемерный ключ подписи")
	} else {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("чтение ключа подписи %s: %w", keyPath, err)
		}
		key, err = jwt.ParseRSAPrivateKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("разбор ключа подписи %s: %w", keyPath, err)
		}
	}
	return NewTokenIssuerWithKey(key, issuer, ttl), nil
}

// NewTokenIssuerWithKey создаёт TokenIssuer с готовым ключом.
func NewTokenIssuerWithKey(key *rsa.PrivateKey, issuer string, ttl time.Duration) *TokenIssuer {
	kid := keyID(&key.PublicKey)
	return &TokenIssuer{
		key:    key,
		kid:    kid,
		issuer: issuer,
		ttl:    ttl,
		jwks:   buildJWKS(&key.PublicKey, kid),
		now:    time.Now,
	}
}

// Issue выпускает токен доступа пользователя.
func (t *TokenIssuer) Issue(u *model.User) (string, error) {
	now := t.now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		PreferredUsername: u.Username,
		Role:              u.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = t.kid

	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("подпись токена: %w", err)
	}
	return signed, nil
}

// Issuer возвращает issuer выпускаемых токенов.
func (t *TokenIssuer) Issuer() string { return t.issuer }

// JWKS возвращает открытый ключ в формате JWK Set.
func (t *TokenIssuer) JWKS() json.RawMessage { return t.jwks }

// keyID — идентификатор ключа: префикс SHA-256 модуля.
func keyID(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return hex.EncodeToString(sum[:8])
}

// buildJWKS строит JWK Set из открытого RSA-ключа.
func buildJWKS(pub *rsa.PublicKey, kid string) json.RawMessage {
	set := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(set)
	return data
}
