package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidResetToken = errors.New("password reset token is invalid or has expired")

const resetPurpose = "password_reset"

type resetClaims struct {
	Purpose     string `json:"purpose"`
	Fingerprint string `json:"fpr"`
	jwt.RegisteredClaims
}

// ResetTokenManager issues single purpose password reset tokens. A token is
// bound to the password hash it was issued against, so it stops working once
// the password changes.
type ResetTokenManager struct {
	secret []byte
	expiry time.Duration
}

func NewResetTokenManager(secret []byte, expiry time.Duration) *ResetTokenManager {
	return &ResetTokenManager{secret: secret, expiry: expiry}
}

func passwordFingerprint(hash []byte) string {
	sum := sha256.Sum256(hash)
	return hex.EncodeToString(sum[:8])
}

func (m *ResetTokenManager) Issue(userId uuid.UUID, passwordHash []byte) (string, error) {
	now := time.Now()
	claims := resetClaims{
		Purpose:     resetPurpose,
		Fingerprint: passwordFingerprint(passwordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userId.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("error signing reset token: %w", err)
	}
	return token, nil
}

// Parse validates the token and returns the user id and password fingerprint it was issued for.
func (m *ResetTokenManager) Parse(token string) (uuid.UUID, string, error) {
	var claims resetClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, "", ErrInvalidResetToken
	}

	if claims.Purpose != resetPurpose {
		return uuid.Nil, "", ErrInvalidResetToken
	}

	userId, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", ErrInvalidResetToken
	}

	return userId, claims.Fingerprint, nil
}
