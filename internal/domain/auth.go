package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// ScopeAdmin дает право менять политики чужих идентичностей.
// Без него мутации применяются только к идентичности из субъекта токена.
const ScopeAdmin = "langcat.admin"

// TokenIssuer — значение iss во всех выпускаемых токенах; валидатор
// отвергает токены с чужим издателем.
const TokenIssuer = "langcat"

type CustomClaims struct {
	Identity string          `json:"identity"`
	Scopes   map[string]bool `json:"scopes"` // "langcat.admin": true
	jwt.RegisteredClaims
}

// CanActOn проверяет, вправе ли держатель токена менять политику target.
func (c *CustomClaims) CanActOn(target string) bool {
	if c.Identity == target {
		return true
	}
	return c.Scopes[ScopeAdmin]
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// Credential — учетная запись оператора из конфигурации.
// Пароль хранится только как bcrypt-хеш.
type Credential struct {
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отдаем наружу
	Identity     string          `json:"identity"`
	Scopes       map[string]bool `json:"scopes"`
}
