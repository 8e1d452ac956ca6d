package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/meistericham/pcrtrack/internal/config"
	"github.com/meistericham/pcrtrack/internal/session"
)

var (
	tokenConfigPath string
	tokenEmail      string
	tokenPassword   string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign in and print an access token",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "account email")
	tokenCmd.Flags().StringVar(&tokenPassword, "password", "", "account password (or PCRTRACK_PASSWORD)")
}

func runToken(cmd *cobra.Command, _ []string) error {
	if tokenEmail == "" {
		return fmt.Errorf("--email is required")
	}
	password := goutils.Env("PCRTRACK_PASSWORD", tokenPassword)
	if password == "" {
		return fmt.Errorf("--password or PCRTRACK_PASSWORD is required")
	}

	cfg, err := config.Load(goutils.Env("PCRTRACK_CONFIG", tokenConfigPath))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	provider := session.NewHTTPProvider(session.HTTPConfig{
		BaseURL:    cfg.Identity.BaseURL,
		AnonKey:    cfg.Identity.AnonKey,
		ServiceKey: cfg.Identity.ServiceKey,
		JWTSecret:  cfg.Identity.JWTSecret,
	}, logger)

	sess, err := provider.SignIn(cmd.Context(), tokenEmail, password)
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	fmt.Println(sess.AccessToken)
	return nil
}
