package security

import (
	"errors"
	"time"

	"authgate/internal/platform/config"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

// TokenAuth verifies access tokens; the router's jwtauth.Verifier middleware
// reads it. Refresh tokens are signed with a separate secret so one can never
// be presented in place of the other.
var (
	TokenAuth   *jwtauth.JWTAuth
	refreshAuth *jwtauth.JWTAuth
)

func InitJWT() {
	TokenAuth = jwtauth.New("HS256", config.AppConfig.AccessTokenKey, nil)
	refreshAuth = jwtauth.New("HS256", config.AppConfig.RefreshTokenKey, nil)
}

func GenerateAccessToken(accountID, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": accountID,
		"role":    role,
		"exp":     now.Add(config.AppConfig.AccessTokenTTL).Unix(),
		"iat":     now.Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

func GenerateRefreshToken(accountID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": accountID,
		"exp":     now.Add(config.AppConfig.RefreshTokenTTL).Unix(),
		"iat":     now.Unix(),
	}
	_, tokenString, err := refreshAuth.Encode(claims)
	return tokenString, err
}

// ParseRefreshToken checks signature and expiry and returns the account id the
// token was issued for.
func ParseRefreshToken(tokenString string) (string, error) {
	token, err := jwtauth.VerifyToken(refreshAuth, tokenString)
	if err != nil {
		return "", err
	}
	id, ok := token.Get("user_id")
	if !ok {
		return "", errors.New("user_id claim is missing")
	}
	accountID, ok := id.(string)
	if !ok || accountID == "" {
		return "", errors.New("user_id claim is not a string")
	}
	return accountID, nil
}

// Helper functions to extract claims, used by the auth middleware.
func GetUserIDFromClaims(claims map[string]any) (string, error) {
	id, ok := claims["user_id"].(string)
	if !ok {
		return "", errors.New("user_id claim is missing or not a string")
	}
	return id, nil
}

func GetUserRoleFromClaims(claims map[string]any) (string, error) {
	role, ok := claims["role"].(string)
	if !ok {
		return "", errors.New("role claim is missing or not a string")
	}
	return role, nil
}
