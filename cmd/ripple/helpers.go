package main

import (
	"fmt"
	"os"

	ripple "github.com/ripple-im/ripple-go"
)

// getClient creates a Ripple client from the config file, with
// RIPPLE_TOKEN and RIPPLE_ENDPOINT environment overrides.
func getClient() *ripple.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	token := cfg.Auth.Token
	if env := os.Getenv("RIPPLE_TOKEN"); env != "" {
		token = env
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "No access token. Run 'ripple init <token>' first.")
		os.Exit(1)
	}

	endpoint := cfg.Default.Endpoint
	if env := os.Getenv("RIPPLE_ENDPOINT"); env != "" {
		endpoint = env
	}

	var opts []ripple.ClientOption
	if endpoint != "" {
		opts = append(opts, ripple.WithEndpoint(endpoint))
	} else if cfg.Default.Environment != "" && cfg.Default.Environment != "production" {
		opts = append(opts, ripple.WithEnvironment(ripple.Environment(cfg.Default.Environment)))
	}

	return ripple.NewClient(token, opts...)
}
