// Command tokengen mints short-lived bearer tokens for operators who need to
// call the unblock endpoint without a user account.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
)

func main() {
	subject := flag.String("subject", "", "operator identifier recorded as the token subject")
	role := flag.String("role", string(models.RoleModerator), "role claim: user, moderator or admin")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if err := run(*subject, *role, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
}

func run(subject, roleName string, ttl time.Duration) error {
	_ = godotenv.Load()

	if subject == "" {
		return fmt.Errorf("-subject is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("-ttl must be positive")
	}

	role, err := models.ParseRole(roleName)
	if err != nil {
		return err
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	tm := auth.NewTokenManager(secret, ttl)
	token, err := tm.GenerateOperatorToken(subject, role, ttl)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Println(token)
	return nil
}
