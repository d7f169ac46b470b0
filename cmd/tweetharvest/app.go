package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"tweetharvest/pkg/auth"
	"tweetharvest/pkg/config"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/metrics"
	"tweetharvest/pkg/retry"
	"tweetharvest/pkg/twitter"
	"tweetharvest/pkg/ui"
)

// newCredentialManager is replaced in tests.
var newCredentialManager = auth.NewManager

// app carries what every fetching command needs.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	console *ui.Console
	metrics *metrics.Metrics
}

func setup(cmd *cobra.Command, g *globalOptions) (*app, error) {
	cfg, err := config.Load(g.configFile, changedFlags(cmd))
	if err != nil {
		return nil, err
	}

	log, err := logger.Initialize(&cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log.WithField("version", version).Debug("tweetharvest starting")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a := &app{
		cfg:     cfg,
		log:     log,
		console: newConsole(cmd, g),
		metrics: metrics.New(reg),
	}

	if cfg.Metrics.Addr != "" {
		ctx := cmd.Context()
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, log); err != nil {
				log.WithError(err).Error("Metrics listener failed")
			}
		}()
	}
	return a, nil
}

// connect resolves credentials and obtains a bearer token. It runs before
// any output file is opened so a credential problem leaves no files behind.
func (a *app) connect(ctx context.Context) (*twitter.Client, error) {
	key, secret := a.cfg.Twitter.AppKey, a.cfg.Twitter.AppSecret
	if key == "" || secret == "" {
		manager, err := newCredentialManager()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
		}
		creds, err := manager.Resolve(a.cfg.Twitter.Profile)
		if err != nil {
			a.console.Println()
			auth.ShowCredentialGuide(a.console.Writer())
			return nil, err
		}
		key, secret = creds.AppKey, creds.AppSecret
		a.log.WithField("profile", creds.Name).Info("Using stored credentials")
	}

	return twitter.Authenticate(ctx, twitter.Options{
		AppKey:    key,
		AppSecret: secret,
		BaseURL:   a.cfg.Twitter.BaseURL,
		TokenURL:  a.cfg.Twitter.TokenURL,
		UserAgent: a.cfg.Twitter.UserAgent,
		Timeout:   a.cfg.Twitter.Timeout,
		Logger:    a.log,
	})
}

func (a *app) tweetMode() string {
	if a.cfg.Twitter.Extended {
		return twitter.TweetModeExtended
	}
	return ""
}

func (a *app) retryPolicy() retry.Policy {
	h := a.cfg.Hydrate
	return retry.NewPolicy(h.RetryStrategy, h.RetryInterval, h.MaxRetries)
}
