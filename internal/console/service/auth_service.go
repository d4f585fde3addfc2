package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/RainBowCreation/LangCategory/internal/domain"
	"github.com/RainBowCreation/LangCategory/internal/infra"
	"github.com/RainBowCreation/LangCategory/internal/infra/auth"
)

// AuthService выпускает и проверяет операторские токены.
// Учетные записи объявляются в конфигурации (bcrypt-хеши), БД не нужна.
// Embedding BaseValidator дает реализацию auth.TokenValidator.
type AuthService struct {
	*auth.BaseValidator

	creds      map[string]domain.Credential
	privateKey *rsa.PrivateKey
	tokenTTL   time.Duration
}

func NewAuthService(cfg infra.AuthConfig) (*AuthService, error) {
	pub, err := auth.ParseRSAPublicKey(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	priv, err := auth.ParseRSAPrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	creds := make(map[string]domain.Credential, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		scopes := make(map[string]bool, len(c.Scopes))
		for _, s := range c.Scopes {
			scopes[s] = true
		}
		identity := c.Identity
		if identity == "" {
			identity = c.Username
		}
		creds[c.Username] = domain.Credential{
			Username:     c.Username,
			PasswordHash: c.PasswordHash,
			Identity:     identity,
			Scopes:       scopes,
		}
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &AuthService{
		BaseValidator: auth.NewBaseValidator(pub),
		creds:         creds,
		privateKey:    priv,
		tokenTTL:      ttl,
	}, nil
}

func (s *AuthService) GenerateToken(_ context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (источник правды — конфигурация)
	cred, ok := s.creds[username]
	if !ok {
		return nil, errors.New("invalid credentials")
	}

	// 2. Проверка пароля (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	// 3. Формирование Claims
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)
	claims := &domain.CustomClaims{
		Identity: cred.Identity,
		Scopes:   cred.Scopes, // Напр. map[string]bool{"langcat.admin": true}
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    domain.TokenIssuer,
			Subject:   cred.Identity,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	// 4. Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
