package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL bounds how long a participant token can be used to join.
const TokenTTL = 24 * time.Hour

var jwtSecret []byte

var ErrInvalidToken = errors.New("invalid token")

// Claims identify one participant of one session.
type Claims struct {
	Participant int64
	Session     string
}

func InitJWT(secret string) {
	if secret == "" {
		panic("JWT_SECRET is not set")
	}
	jwtSecret = []byte(secret)
}

func GenerateJWT(participant int64, session string) (string, error) {
	if len(jwtSecret) == 0 {
		return "", errors.New("jwt secret not initialized")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"participant_id": participant,
		"session":        session,
		"exp":            now.Add(TokenTTL).Unix(),
		"iat":            now.Unix(),
		"nbf":            now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseJWT validates signature and time claims and returns the identity.
func ParseJWT(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("%w: claims", ErrInvalidToken)
	}

	// numbers come back as float64; ids stay below 2^53
	id, ok := mc["participant_id"].(float64)
	if !ok || id <= 0 {
		return Claims{}, fmt.Errorf("%w: participant_id missing", ErrInvalidToken)
	}
	session, _ := mc["session"].(string)
	if session == "" {
		return Claims{}, fmt.Errorf("%w: session missing", ErrInvalidToken)
	}
	return Claims{Participant: int64(id), Session: session}, nil
}
