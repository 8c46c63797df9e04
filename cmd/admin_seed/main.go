// Package main creates a staff user with a wallet and prints a signed token
// for it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"walletledger/internal/app"
	"walletledger/internal/config"
	"walletledger/internal/logger"
	"walletledger/internal/models"
	"walletledger/internal/services/ledger"
	"walletledger/internal/utils"

	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	role := flag.String("role", models.RoleApprover, "role to grant: approver or admin")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	email := os.Getenv("ADMIN_EMAIL")
	name := config.GetEnv("ADMIN_NAME", "Ledger Operations")
	pin := os.Getenv("ADMIN_PIN")
	if email == "" || pin == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_EMAIL and ADMIN_PIN must be set in environment")
		os.Exit(1)
	}
	if *role != models.RoleApprover && *role != models.RoleAdmin {
		fmt.Fprintf(os.Stderr, "unsupported role %q\n", *role)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be set")
		os.Exit(1)
	}

	log := logger.Must(cfg.Env)
	defer log.Sync() //nolint:errcheck

	a, err := app.Build(cfg, log)
	if err != nil {
		log.Fatal("failed to initialise ledger", zap.Error(err))
	}
	defer a.Close()

	acct, err := a.Engine.OpenAccount(context.Background(), ledger.OpenAccountRequest{
		Email: email,
		Name:  name,
		Phone: os.Getenv("ADMIN_PHONE"),
		Pin:   pin,
		Role:  *role,
	})
	if err != nil {
		log.Fatal("failed to create staff user", zap.Error(err))
	}

	token, err := utils.GenerateToken(cfg.JWTSecret, models.UserClaims{
		UserID:      acct.User.ID,
		Email:       acct.User.Email,
		Role:        acct.User.Role,
		Permissions: models.GetDefaultPermissions(acct.User.Role),
	}, *ttl)
	if err != nil {
		log.Fatal("failed to sign token", zap.Error(err))
	}

	log.Info("staff user created",
		zap.String("user_id", acct.User.ID.String()),
		zap.String("role", acct.User.Role),
		zap.String("account_number", acct.Wallet.AccountNumber),
	)
	fmt.Println(token)
}
