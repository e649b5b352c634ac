package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spec-kit/ads-users/internal/auth"
	"github.com/spec-kit/ads-users/internal/config"
	"github.com/spec-kit/ads-users/internal/domain"
)

func main() {
	userID := flag.Int64("user", 0, "id of the user the token acts as")
	username := flag.String("username", "", "username recorded in the token")
	role := flag.String("role", string(domain.RoleAdmin), "role: buyer, seller or admin")
	flag.Parse()

	if *userID <= 0 || *username == "" {
		fmt.Fprintln(os.Stderr, "usage: issue-token -user=<ID> -username=<NAME> [-role=admin]")
		os.Exit(2)
	}
	if !domain.Role(*role).Valid() {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	token, expiresAt, err := tokens.GenerateToken(*userID, *username, domain.Role(*role))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println(token)
}
