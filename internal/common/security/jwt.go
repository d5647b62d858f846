package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

var TokenAuth *jwtauth.JWTAuth

// InitJWT sets up HS256 verification with the secret shared with the school backend.
func InitJWT(secret []byte) {
	TokenAuth = jwtauth.New("HS256", secret, nil)
}

// GenerateToken mints a token the API accepts. The school backend issues the
// real ones; this serves tooling and tests.
func GenerateToken(userID, role string, ttl time.Duration) (string, error) {
	if TokenAuth == nil {
		return "", errors.New("jwt not initialised")
	}
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
		"iat":     time.Now().Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

// GetUserIDFromClaims reads user_id, which the backend may encode as a string or a number.
func GetUserIDFromClaims(claims map[string]interface{}) (string, error) {
	switch id := claims["user_id"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case int:
		return strconv.Itoa(id), nil
	}
	return "", errors.New("user_id claim is missing or not a string")
}

func GetUserRoleFromClaims(claims map[string]interface{}) string {
	role, _ := claims["role"].(string)
	return role
}
