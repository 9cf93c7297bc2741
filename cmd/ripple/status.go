package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and connectivity",
	Long:  "Display the current configuration, check if the token is expired, and probe the realtime endpoint.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Print config summary.
		fmt.Println("Configuration:")
		fmt.Printf("  Environment: %s\n", valueOrDefault(cfg.Default.Environment, "(not set)"))
		if cfg.Default.Endpoint != "" {
			fmt.Printf("  Endpoint:    %s\n", cfg.Default.Endpoint)
		}

		fmt.Println()
		fmt.Println("Auth:")
		if cfg.Auth.Username != "" {
			fmt.Printf("  Username: %s\n", cfg.Auth.Username)
			fmt.Printf("  User ID:  %s\n", cfg.Auth.UserID)
		} else {
			fmt.Println("  Username: (not set)")
		}

		// Check token expiry.
		tokenStatus := "none"
		if cfg.Auth.Token != "" {
			tokenStatus = maskKey(cfg.Auth.Token)
			if cfg.Auth.TokenExpires != "" {
				expires, err := time.Parse(time.RFC3339, cfg.Auth.TokenExpires)
				switch {
				case err != nil:
					tokenStatus += fmt.Sprintf(" (unparseable expiry: %s)", cfg.Auth.TokenExpires)
				case time.Now().Before(expires):
					tokenStatus += fmt.Sprintf(" (expires %s)", expires.Format(time.RFC3339))
				default:
					tokenStatus += fmt.Sprintf(" (EXPIRED %s)", expires.Format(time.RFC3339))
				}
			}
		}
		fmt.Printf("  Token:    %s\n", tokenStatus)

		if cfg.Auth.Token == "" {
			return nil
		}

		// Probe the realtime endpoint.
		fmt.Println()
		fmt.Println("Connectivity:")

		rt := getClient().Realtime()
		defer rt.Disconnect()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := rt.Connect(ctx); err != nil {
			fmt.Printf("  Connect failed: %v\n", err)
			return nil
		}

		start := time.Now()
		if _, err := rt.Ping(ctx); err != nil {
			fmt.Printf("  Ping failed: %v\n", err)
			return nil
		}
		fmt.Printf("  Connected, ping RTT %s\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

// maskKey shows the first 12 and last 4 characters of a key.
func maskKey(key string) string {
	if len(key) <= 16 {
		return key[:4] + "..." + key[len(key)-4:]
	}
	return key[:12] + "..." + key[len(key)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
