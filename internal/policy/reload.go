package policy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultReloadChannel is the pub/sub channel that triggers a policy reload.
const DefaultReloadChannel = "policy.reload"

// ReloaderConfig collects the dependencies of a Reloader.
type ReloaderConfig struct {
	Store   *Store
	Source  Source
	Client  *redis.Client
	Channel string
	Logger  *slog.Logger
	// OnReload runs after every attempt with the new engine or the build error.
	OnReload []func(*Engine, error)
}

// Reloader rebuilds the store from its source whenever a message arrives on
// the reload channel.
type Reloader struct {
	store    *Store
	source   Source
	client   *redis.Client
	channel  string
	logger   *slog.Logger
	onReload []func(*Engine, error)
}

// NewReloader constructs a Reloader.
func NewReloader(cfg ReloaderConfig) *Reloader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultReloadChannel
	}
	return &Reloader{
		store:    cfg.Store,
		source:   cfg.Source,
		client:   cfg.Client,
		channel:  channel,
		logger:   logger,
		onReload: cfg.OnReload,
	}
}

// Trigger reloads synchronously.
func (r *Reloader) Trigger(ctx context.Context) (*Engine, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("policy: reloader not configured")
	}
	engine, err := r.store.Reload(ctx, r.source)
	if err != nil {
		r.logger.Error("policy reload rejected, keeping previous policy",
			slog.String("source", sourceName(r.source)), slog.Any("error", err))
	} else {
		r.logger.Info("policy reloaded",
			slog.String("source", sourceName(r.source)),
			slog.Uint64("version", r.store.Version()),
			slog.Int("roles", len(engine.Graph().Roles())),
			slog.Int("permissions", len(engine.Catalog().Permissions())))
	}
	for _, hook := range r.onReload {
		hook(engine, err)
	}
	return engine, err
}

// Run listens on the reload channel until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	if r == nil || r.client == nil {
		return errors.New("policy: reloader redis client not configured")
	}
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			r.logger.Warn("policy reload unsubscribe", slog.Any("error", err))
		}
	}()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	r.logger.Info("policy reload listener started", slog.String("channel", r.channel))
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.logger.Info("policy reload requested", slog.String("channel", msg.Channel), slog.String("payload", msg.Payload))
			_, _ = r.Trigger(ctx)
		}
	}
}

// Publish asks every listener on the channel to reload.
func Publish(ctx context.Context, client *redis.Client, channel, reason string) error {
	if client == nil {
		return errors.New("policy: redis client not configured")
	}
	if channel == "" {
		channel = DefaultReloadChannel
	}
	return client.Publish(ctx, channel, reason).Err()
}

func sourceName(src Source) string {
	if src == nil {
		return ""
	}
	return src.Name()
}
