package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shineum/sendgrid-bridge/internal/config"
	"github.com/shineum/sendgrid-bridge/internal/delivery"
	"github.com/shineum/sendgrid-bridge/internal/email"
	"github.com/shineum/sendgrid-bridge/internal/gate"
	"github.com/shineum/sendgrid-bridge/internal/notes"
	"github.com/shineum/sendgrid-bridge/internal/notification"
	"github.com/shineum/sendgrid-bridge/internal/provider"
	"github.com/shineum/sendgrid-bridge/internal/provider/graph"
	"github.com/shineum/sendgrid-bridge/internal/provider/ses"
	"github.com/shineum/sendgrid-bridge/internal/provider/stdout"
	"github.com/shineum/sendgrid-bridge/internal/sendgrid"
	"github.com/shineum/sendgrid-bridge/internal/server"
)

// app holds the wired components shared by every command.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	client     *sendgrid.Client
	gate       *gate.Gate
	notes      notes.Recorder
	root       *email.Root
	dispatcher *notification.Dispatcher
	pipeline   *delivery.Pipeline
	checks     map[string]server.CheckFunc
	closers    []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, checks: map[string]server.CheckFunc{}}

	a.client = sendgrid.New(sendgrid.Config{
		APIKey:  cfg.SendGrid.APIKey,
		BaseURL: cfg.SendGrid.BaseURL,
		Timeout: cfg.SendGrid.Timeout,
	})
	a.gate = gate.New(cfg.SendGrid.APIKey, a.client, logger)

	recorder, err := a.openNotes(ctx)
	if err != nil {
		return nil, err
	}
	a.notes = recorder

	a.root, err = email.OpenRoot(cfg.Attachments.Root)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.root.Close)

	fallback, err := selectProvider(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.dispatcher = notification.New(a.client, a.gate, a.notes,
		notification.WithLogger(logger),
		notification.WithAttachmentRoot(a.root),
		notification.WithFailureHandler(notification.LogFailures(logger)),
	)
	a.pipeline = delivery.New(fallback, logger, a.dispatcher.MaybeSendEmail).ConfineAttachments(a.root)

	logger.Info("sendgrid bridge configured",
		"sendgrid_configured", cfg.SendGridConfigured(),
		"fallback", fallback.Name(),
		"notes_store", cfg.Notes.Store,
		"attachments_root", a.root.Dir(),
		"http_auth", cfg.HTTP.AuthToken != "",
	)
	return a, nil
}

func (a *app) openNotes(ctx context.Context) (notes.Recorder, error) {
	if a.cfg.Notes.Store != config.NotesRedis {
		return notes.NewMemory(), nil
	}

	client, err := notes.Open(ctx, a.cfg.Notes.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	recorder := notes.NewRedis(client, a.cfg.Notes.Prefix)
	a.checks["notes"] = recorder.Ping
	return recorder, nil
}

// Close releases store connections and the attachments root.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("failed to close resource", "error", err)
		}
	}
	a.closers = nil
}

func (a *app) server() *server.Server {
	return server.New(server.Config{
		Listen:    a.cfg.HTTP.Listen,
		AuthToken: a.cfg.HTTP.AuthToken,
		Hook:      a.dispatcher,
		Pipeline:  a.pipeline,
		Stats:     a.client,
		Gate:      a.gate,
		Notes:     a.notes,
		Checks:    a.checks,
		Logger:    a.logger,
	})
}

// selectProvider builds the fallback transport named in the configuration.
func selectProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Fallback.Provider {
	case config.ProviderSES:
		if !cfg.SESConfigured() {
			return nil, config.ErrSESIncomplete
		}
		p, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case config.ProviderGraph:
		if !cfg.GraphConfigured() {
			return nil, config.ErrGraphIncomplete
		}
		return graph.New(ctx, graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		}), nil

	case config.ProviderStdout, "":
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Fallback.Provider)
	}
}
