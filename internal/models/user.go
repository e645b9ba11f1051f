package models

import (
	"time"
)

type User struct {
	ID             string
	Email          string
	PasswordHash   string
	Name           string
	Role           Role
	TOTPEnabled    bool
	TOTPSecret     []byte // AES-GCM ciphertext
	TOTPNonce      []byte
	TOTPLastUsedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
