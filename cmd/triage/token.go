package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/spec-kit/itsm-triage/internal/auth"
	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

func tokenCommand(_ context.Context, args []string, _ io.Reader, stdout, stderr io.Writer) error {
	var subject, roleName string
	var ttl int
	fs := pflag.NewFlagSet("triage token", pflag.ContinueOnError)
	fs.StringVar(&subject, "subject", "triage-operator", "token subject")
	fs.StringVar(&roleName, "role", string(auth.RoleOperator), "operator or auditor")
	fs.IntVar(&ttl, "ttl-minutes", 0, "token lifetime (default AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	if err := parseFlags(fs, args, stderr); err != nil {
		if errors.Is(err, errHelp) {
			return nil
		}
		return err
	}

	role, err := auth.ParseRole(roleName)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	cfg, _, err := loadConfig("")
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return apperrors.NewValidationError("AUTH_JWT_SECRET is not set", nil)
	}
	if ttl <= 0 {
		ttl = cfg.Auth.AccessTokenTTLMinutes
	}

	token, expires, err := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl).GenerateToken(subject, role)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stderr, "role=%s subject=%s expires=%s\n", role, subject, expires.UTC().Format(time.RFC3339))
	return nil
}
