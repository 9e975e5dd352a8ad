package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds the administrator credentials.
type LoginRequest struct {
	Username  string `json:"username" form:"username" validate:"required,max=64"`
	Password  string `json:"password" form:"password" validate:"required,max=128"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// Session is the issued administrator session.
type Session struct {
	Token     string    `json:"-"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionClaims is the signed payload carried by the session cookie.
type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}
