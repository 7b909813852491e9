package issuer

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jrsteele09/go-admin-session/users"
	"github.com/rs/zerolog/log"
)

// DefaultAdminPermissions are granted to the bootstrap admin account
var DefaultAdminPermissions = []string{"dashboard:read", "orders:read", "orders:write", "users:manage"}

// EnsureAdmin creates the admin account if no user with that username exists.
// When password is empty a random one is generated and returned; it is not shown again.
func EnsureAdmin(repo users.UserRepo, username, password string) (generatedPassword string, err error) {
	if existing, err := repo.GetByUsername(username); err == nil && existing != nil {
		log.Info().Str("username", username).Msg("Bootstrap: admin account already exists")
		return "", nil
	}

	if password == "" {
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		password = base64.URLEncoding.EncodeToString(passwordBytes)
		generatedPassword = password
	}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &users.User{
		Username:     username,
		PasswordHash: passwordHash,
		FirstName:    "System",
		LastName:     "Administrator",
		DateJoined:   time.Now(),
		Status:       users.StatusActive,
		Role:         users.RoleAdmin,
		Permissions:  DefaultAdminPermissions,
	}
	if err := repo.Upsert(admin); err != nil {
		return "", fmt.Errorf("failed to create admin: %w", err)
	}

	log.Info().Str("username", username).Msg("Bootstrap: created admin account")
	return generatedPassword, nil
}
