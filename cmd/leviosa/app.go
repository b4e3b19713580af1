package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"leviosa/internal/apiclient"
	"leviosa/internal/credentials"
	"leviosa/internal/cs"
	"leviosa/internal/localstore"
	"leviosa/internal/sourcing"
)

// app bundles the clients one command invocation needs.
type app struct {
	creds    *credentials.Store
	client   *apiclient.Client
	api      *cs.API
	sourcing *sourcing.Client
	sessions *sourcing.SessionStore
}

// newApp wires persisted state and clients from the loaded config.
func newApp(stderr io.Writer) (*app, error) {
	if stderr == nil {
		stderr = os.Stderr
	}
	credKV, err := localstore.NewFileKV(cfg.CredentialsPath(), cfg.State.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}
	sessionKV, err := localstore.NewFileKV(cfg.SessionPath(), cfg.State.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("open sourcing state: %w", err)
	}

	creds := credentials.NewStore(credKV)
	client := apiclient.New(cfg.API.BaseURL, creds, cfg.GetAPITimeout(),
		apiclient.WithLoginPath(cfg.API.LoginPath),
		apiclient.WithReauthHandler(func(loginPath string) {
			fmt.Fprintf(stderr, "Session expired. Run 'leviosa login' to sign in again (%s).\n", loginPath)
		}),
	)

	return &app{
		creds:    creds,
		client:   client,
		api:      cs.New(client, creds),
		sourcing: sourcing.NewClient(cfg.Sourcing.BaseURL, cfg.FeaturesBaseURL(), cfg.GetSourcingTimeout(), sourcing.WithTokens(creds), sourcing.WithRefresher(client)),
		sessions: sourcing.NewSessionStore(sessionKV),
	}, nil
}

// userMessage renders err for the terminal.
func userMessage(err error) string {
	if apiclient.IsCanceled(err) {
		return "canceled"
	}
	var srcErr *sourcing.APIError
	if errors.As(err, &srcErr) {
		if srcErr.IsLimitReached() {
			return "usage limit reached: " + srcErr.Message
		}
		return srcErr.Message
	}
	return apiclient.ErrorMessage(err)
}
