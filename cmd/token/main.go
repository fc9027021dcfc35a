// Command token issues a bearer token for an existing user, for local
// development and operator access.
//
//	token -user 3 -role admin
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/models"
)

type tokenConfig struct {
	Secret string        `env:"AUTH_TOKEN_SECRET,required"`
	TTL    time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"24h"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := flags.Int64("user", 0, "user id to issue the token for")
	role := flags.String("role", string(models.RoleCustomer), "role claim: customer, designer or admin")
	ttl := flags.Duration("ttl", 0, "token lifetime (defaults to AUTH_TOKEN_TTL)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	var cfg tokenConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if *ttl > 0 {
		cfg.TTL = *ttl
	}

	issuer, err := authz.NewTokenIssuer(cfg.Secret, cfg.TTL)
	if err != nil {
		return err
	}
	token, err := issuer.Issue(authz.Principal{UserID: *userID, Role: models.Role(*role)})
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
