package main

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/goartstore/sheet-module/internal/api/errors"
)

// keyID — kid единственного ключа.
const keyID = "dev-idp-key-1"

// defaultTTL — время жизни токена, если не задано в запросе.
const defaultTTL = time.Hour

// jwksKey — один ключ в JWKS (RFC 7517).
type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// jwksResponse — ответ GET /jwks.
type jwksResponse struct {
	Keys []jwksKey `json:"keys"`
}

// tokenRequest — тело запроса POST /token.
type tokenRequest struct {
	// Sub — идентификатор пользователя, владелец файлов
	Sub string `json:"sub"`
	// TTLSeconds — время жизни токена (по умолчанию 3600)
	TTLSeconds int `json:"ttl_seconds"`
}

// tokenResponse — ответ POST /token.
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// idp — провайдер идентификации для локального запуска:
// публикует JWKS и выдаёт подписанные RS256 токены на любой sub.
type idp struct {
	privateKey *rsa.PrivateKey
	jwks       []byte
	logger     *slog.Logger
}

// newIDP создаёт провайдер с ключом key.
func newIDP(key *rsa.PrivateKey, logger *slog.Logger) (*idp, error) {
	jwks, err := json.Marshal(jwksResponse{
		Keys: []jwksKey{{
			Kty: "RSA",
			Kid: keyID,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	if err != nil {
		return nil, err
	}
	return &idp{
		privateKey: key,
		jwks:       jwks,
		logger:     logger.With(slog.String("component", "dev_idp")),
	}, nil
}

// routes возвращает роутер провайдера.
func (p *idp) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/jwks", p.handleJWKS)
	r.Post("/token", p.handleToken)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

// handleJWKS обрабатывает GET /jwks.
func (p *idp) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(p.jwks)
}

// handleToken обрабатывает POST /token.
func (p *idp) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}
	if req.Sub == "" {
		apierrors.ValidationError(w, "Поле 'sub' обязательно")
		return
	}

	ttl := defaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   req.Sub,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    "dev-idp",
	})
	token.Header["kid"] = keyID

	signed, err := token.SignedString(p.privateKey)
	if err != nil {
		p.logger.Error("Ошибка подписи JWT", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка генерации токена")
		return
	}

	p.logger.Info("Токен выдан",
		slog.String("sub", req.Sub),
		slog.Duration("ttl", ttl),
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{Token: signed, ExpiresAt: expiresAt.UTC()})
}
