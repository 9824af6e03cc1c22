package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ms-booking/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("authorization header is missing")
	ErrInvalidToken = errors.New("invalid token")
)

// TokenVerifier turns a bearer token into the calling principal.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (models.Principal, error)
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// JWTVerifier validates HS256 tokens signed with a shared secret. The user ID comes
// from the "id" claim, falling back to "sub".
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, rawToken string) (models.Principal, error) {
	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(rawToken, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return models.Principal{}, ErrInvalidToken
	}
	return principalFromClaims(claims)
}

func principalFromClaims(claims map[string]interface{}) (models.Principal, error) {
	id := claimString(claims["id"])
	if id == "" {
		id = claimString(claims["sub"])
	}
	if id == "" {
		return models.Principal{}, fmt.Errorf("%w: subject claim not found in token", ErrInvalidToken)
	}
	return models.Principal{ID: id, Role: claimString(claims["role"])}, nil
}

// claimString accepts string and numeric claims; JSON numbers decode as float64.
func claimString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// NewVerifier picks the verifier for the configured mode.
func NewVerifier(ctx context.Context, mode, jwtSecret, oidcIssuer string) (TokenVerifier, error) {
	switch strings.ToLower(mode) {
	case "", "jwt":
		return NewJWTVerifier(jwtSecret)
	case "oidc":
		return NewOIDCVerifier(ctx, oidcIssuer)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}
