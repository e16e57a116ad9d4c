package main

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/hivetrace/hivectl/internal/api"
	"github.com/hivetrace/hivectl/internal/client"
	"github.com/hivetrace/hivectl/internal/session"
	"github.com/hivetrace/hivectl/internal/state"
	"github.com/spf13/cobra"
)

type clientConfig struct {
	apiURL  string
	stateDB string
	timeout time.Duration
}

func addClientFlags(cmd *cobra.Command, cfg *clientConfig) {
	cmd.Flags().StringVar(&cfg.apiURL, "api-url", os.Getenv("HIVECTL_API_URL"), "monitoring service URL")
	cmd.Flags().StringVar(&cfg.stateDB, "state-db", getEnv("HIVECTL_STATE_DB", "hivectl.db"), "console state database path")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", client.DefaultTimeout, "request timeout")
}

// consoleEnv bundles the wired-up core for one command invocation.
type consoleEnv struct {
	store  *state.Store
	client *client.Client
	sess   *session.Manager
	eps    api.Endpoints
}

func (cfg *clientConfig) open() (*consoleEnv, error) {
	if cfg.apiURL == "" {
		return nil, fmt.Errorf("API URL required (use --api-url flag or HIVECTL_API_URL env var)")
	}
	base, err := url.Parse(cfg.apiURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q", cfg.apiURL)
	}

	store, err := state.Open(cfg.stateDB)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	// The session cookie persists alongside the CSRF token, so a login
	// in one invocation authenticates the next.
	jar, err := state.NewJar(store, base)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open cookie jar: %w", err)
	}

	eps := api.DefaultEndpoints()
	var sess *session.Manager
	c := client.New(cfg.apiURL, store,
		client.WithTimeout(cfg.timeout),
		client.WithCookieJar(jar),
		client.WithLogger(logger),
		client.WithTokenEndpoint(eps.CsrfToken),
		client.WithAuthExpiredHook(func() {
			if sess != nil {
				sess.MarkExpired()
			}
			fmt.Fprintln(os.Stderr, "session expired, run 'hivectl login'")
		}),
	)
	sess = session.NewManager(c, eps, logger)

	return &consoleEnv{
		store:  store,
		client: c,
		sess:   sess,
		eps:    eps,
	}, nil
}

func (e *consoleEnv) Close() {
	_ = e.store.Close()
}
