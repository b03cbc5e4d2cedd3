// ==============================================================================
// AUTH HANDLER - internal/handler/auth.go
// ==============================================================================
package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"rtgsim/internal/middleware"
	"rtgsim/pkg/config"
	"rtgsim/pkg/errors"
	"rtgsim/pkg/logger"
	"rtgsim/pkg/validator"
)

// AuthHandler issues operator tokens for the control API. Credentials come
// from OPERATOR_USER / OPERATOR_PASSWORD; there is no user store.
type AuthHandler struct {
	jwtCfg    config.JWTConfig
	validator *validator.Validator
	logger    logger.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(jwtCfg config.JWTConfig, val *validator.Validator, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		jwtCfg:    jwtCfg,
		validator: val,
		logger:    log,
	}
}

// TokenRequest is the login payload.
type TokenRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// IssueToken exchanges operator credentials for a signed JWT.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.checkCredentials(req.Username, req.Password); err != nil {
		h.logger.Warn("Login rejected", map[string]interface{}{
			"username": req.Username,
			"ip":       r.RemoteAddr,
		})
		h.respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	expiry := time.Now().Add(h.jwtCfg.Expiration)
	claims := jwt.MapClaims{
		"user_id": uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.Username)).String(),
		"role":    middleware.RoleOperator,
		"exp":     expiry.Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.jwtCfg.Secret))
	if err != nil {
		h.logger.Error("Token signing failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":      signed,
		"expires_at": expiry.UTC().Format(time.RFC3339),
	})
}

func (h *AuthHandler) checkCredentials(username, password string) error {
	wantUser := os.Getenv("OPERATOR_USER")
	wantPass := os.Getenv("OPERATOR_PASSWORD")
	if wantUser == "" || wantPass == "" {
		return errors.ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(wantUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(wantPass)) == 1
	if !userOK || !passOK {
		return errors.ErrInvalidCredentials
	}
	return nil
}

func (h *AuthHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *AuthHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
