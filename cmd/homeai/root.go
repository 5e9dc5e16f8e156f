package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zippro/homeai"
	"github.com/zippro/homeai/internal/config"
	"github.com/zippro/homeai/internal/credstore"
)

var errNoUser = errors.New("no user configured: pass --user or set session.user_id")

// app is the state shared by every command of one CLI run.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
	format string

	client *homeai.Client
	store  credstore.Store
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		v:      config.New(),
		out:    stdout,
		errOut: stderr,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "homeai",
		Short: "Command-line client for the HomeAI rendering API",
		Long: `Log in, submit render jobs, follow them to completion and inspect the
session bootstrap of a HomeAI backend.

Configuration is read from homeai.yaml in the current directory or
~/.homeai, from HOMEAI_* environment variables, and from flags.

Examples:
  homeai login --user u1
  homeai render create --user u1 --image-url https://example.com/room.jpg --style japandi --wait
  homeai bootstrap --user u1 -o yaml
  homeai dev-server --addr 127.0.0.1:8000`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	f := root.PersistentFlags()
	f.String("config", "", "config file (default ./homeai.yaml or ~/.homeai/homeai.yaml)")
	f.String("api-base-url", "", "API base URL (default http://localhost:8000 on a local host)")
	f.String("user", "", "user id to act as")
	f.String("platform", "", "client platform: web, ios or android")
	f.StringP("output", "o", "table", "output format: table, json or yaml")
	f.Bool("json", false, "shorthand for --output json")
	f.Bool("debug", false, "enable debug logging")
	f.String("token-store", "", "where the access token is kept between runs: file, redis or none")

	_ = a.v.BindPFlag("api.base_url", f.Lookup("api-base-url"))
	_ = a.v.BindPFlag("session.user_id", f.Lookup("user"))
	_ = a.v.BindPFlag("session.platform", f.Lookup("platform"))
	_ = a.v.BindPFlag("log.debug", f.Lookup("debug"))
	_ = a.v.BindPFlag("store.kind", f.Lookup("token-store"))

	root.AddCommand(
		newLoginCmd(a),
		newWhoamiCmd(a),
		newLogoutCmd(a),
		newBootstrapCmd(a),
		newRenderCmd(a),
		newDiscoverCmd(a),
		newCatalogCmd(a),
		newCreditsCmd(a),
		newCheckoutCmd(a),
		newDevServerCmd(a),
	)
	return root
}

// setup loads the configuration and builds the logger before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.format, err = outputFormat(cmd)
	if err != nil {
		return err
	}

	a.logger = newLogger(a.errOut, cfg.Log, slog.LevelWarn)
	return nil
}

// newLogger builds the CLI logger on w. level is the minimum level unless
// debug logging is on.
func newLogger(w io.Writer, cfg config.LogConfig, level slog.Level) *slog.Logger {
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func outputFormat(cmd *cobra.Command) (string, error) {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return "json", nil
	}
	format, _ := cmd.Flags().GetString("output")
	switch format = strings.ToLower(format); format {
	case "table", "json", "yaml":
		return format, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

// apiClient returns the client for this run, with any stored session for the
// configured API installed but not yet validated.
func (a *app) apiClient(ctx context.Context) (*homeai.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	client := homeai.NewClient(
		homeai.WithBaseURL(a.cfg.API.BaseURL),
		homeai.WithTimeout(a.cfg.API.Timeout),
		homeai.WithPlatform(homeai.Platform(a.cfg.Session.Platform)),
		homeai.WithTokenTTL(a.cfg.Session.TokenTTL),
		homeai.WithLogger(a.logger),
		homeai.WithUserAgent("homeai-cli/"+version),
	)
	if client.BaseURL() == "" {
		return nil, homeai.ErrBaseURLRequired
	}

	store, err := credstore.Open(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.store = store

	sess, err := store.Load(ctx, client.BaseURL())
	switch {
	case err == nil:
		client.Sessions.Restore(sess)
	case !errors.Is(err, credstore.ErrNotFound):
		a.logger.Warn("ignoring stored session", slog.String("error", err.Error()))
	}

	a.client = client
	return client, nil
}

// session returns a client holding a validated session for the configured
// user. The token is written back to the store, or cleared from it when
// authentication fails.
func (a *app) session(ctx context.Context) (*homeai.Client, string, error) {
	userID := strings.TrimSpace(a.cfg.Session.UserID)
	if userID == "" {
		return nil, "", errNoUser
	}
	client, err := a.apiClient(ctx)
	if err != nil {
		return nil, "", err
	}

	if err := client.Sessions.Ensure(ctx, userID); err != nil {
		if errors.Is(err, homeai.ErrAuth) {
			a.forget(ctx)
		}
		return nil, "", err
	}
	if err := a.store.Save(ctx, client.BaseURL(), client.Sessions.Current()); err != nil {
		a.logger.Warn("could not persist session", slog.String("error", err.Error()))
	}
	return client, userID, nil
}

// forget removes the stored session for the current API.
func (a *app) forget(ctx context.Context) {
	if a.store == nil || a.client == nil {
		return
	}
	if err := a.store.Clear(ctx, a.client.BaseURL()); err != nil {
		a.logger.Warn("could not clear stored session", slog.String("error", err.Error()))
	}
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}
