// Package auth provides account registration, login, and bearer-token
// verification. Identity is fully resolved here; the settlement engine only
// ever sees an account ID.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/rjsfud9894/paper-trade/internal/model"
	"github.com/rjsfud9894/paper-trade/internal/store"
)

// StartingBalance is the virtual cash granted to every new account.
var StartingBalance = decimal.NewFromInt(1_000_000)

// tokenTTL is the access-token lifetime.
const tokenTTL = 24 * time.Hour

// Claims are the JWT claims carried by an access token.
type Claims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// Service issues and verifies access tokens and manages account credentials.
type Service struct {
	store  store.Store
	secret []byte
}

// NewService creates an auth service signing tokens with secret.
func NewService(st store.Store, secret []byte) *Service {
	return &Service{store: st, secret: secret}
}

// Register creates an account with a bcrypt-hashed password and the default
// starting balance.
func (s *Service) Register(ctx context.Context, username, email, password string) (*model.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Balance:      StartingBalance,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// IssueToken signs a bearer token for the account.
func (s *Service) IssueToken(accountID string) (string, error) {
	now := time.Now()
	claims := Claims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyToken parses and validates a bearer token, returning the account ID.
func (s *Service) VerifyToken(token string) (string, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid || claims.AccountID == "" {
		return "", errors.New("invalid token")
	}
	return claims.AccountID, nil
}

// --- HTTP handlers ---

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is the JSON body returned from POST /auth/login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// HandleRegister handles POST /auth/register.
func (s *Service) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, "username, email, and password are required", http.StatusBadRequest)
		return
	}

	account, err := s.Register(r.Context(), req.Username, req.Email, req.Password)
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, "email or username already registered", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, "registration failed", http.StatusInternalServerError)
		return
	}

	slog.Info("account registered", "account", account.ID, "username", account.Username)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(account)
}

// HandleLogin handles POST /auth/login.
func (s *Service) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	account, err := s.store.GetAccountByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response for unknown email and bad password.
		writeError(w, "invalid email or password", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, "invalid email or password", http.StatusUnauthorized)
		return
	}

	token, err := s.IssueToken(account.ID)
	if err != nil {
		writeError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// HandleMe handles GET /auth/me.
func (s *Service) HandleMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountID(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	account, err := s.store.GetAccount(r.Context(), accountID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
