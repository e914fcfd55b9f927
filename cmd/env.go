package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pantrysense/pantry-cli/internal/alert"
	"github.com/pantrysense/pantry-cli/internal/catalog"
	"github.com/pantrysense/pantry-cli/internal/fusion"
	"github.com/pantrysense/pantry-cli/internal/inventory"
	"github.com/pantrysense/pantry-cli/internal/normalize"
	"github.com/pantrysense/pantry-cli/internal/notify"
	"github.com/pantrysense/pantry-cli/internal/pipeline"
	"github.com/pantrysense/pantry-cli/internal/store"
)

// pantryEnv holds the initialized store, alert engine, and pipeline
// needed by the scan/watch/serve commands.
type pantryEnv struct {
	Store    store.Store
	Catalog  *catalog.Catalog
	Engine   *alert.Engine
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (pe *pantryEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return store.NewSQLite(cfg.Store.Path)
	}
}

// initEnv sets up the store, loads the product catalog, and wires the
// full detection pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context) (*pantryEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	cat := catalog.New()
	if cfg.Detection.CatalogPath != "" {
		n, err := cat.LoadXLSX(cfg.Detection.CatalogPath)
		if err != nil {
			zap.L().Warn("product catalog not loaded, barcode expiry lookup disabled",
				zap.String("path", cfg.Detection.CatalogPath),
				zap.Error(err),
			)
		} else {
			zap.L().Info("product catalog loaded", zap.Int("products", n))
		}
	}

	retention := time.Duration(cfg.Detection.RetentionHours) * time.Hour
	engine := alert.NewEngine(st, cfg.Expiry.ThresholdTable())

	p := pipeline.New(
		st,
		normalize.New(cfg.Detection.ConfidenceFloor),
		fusion.NewResolver(cat, cfg.Expiry.ShelfLifeOverrides()),
		inventory.NewReconciler(st, retention),
		engine,
		notify.NewDispatcher(st, buildChannels()...),
	)

	return &pantryEnv{
		Store:    st,
		Catalog:  cat,
		Engine:   engine,
		Pipeline: p,
	}, nil
}

// buildChannels constructs the delivery channels selected in config.
func buildChannels() []notify.Channel {
	var channels []notify.Channel
	for _, name := range cfg.Notify.Channels {
		switch name {
		case "desktop":
			channels = append(channels, notify.NewDesktopChannel())
		case "email":
			channels = append(channels, notify.NewEmailChannel(cfg.Notify.Email))
		case "sms":
			channels = append(channels, notify.NewSMSChannel(cfg.Notify.SMS))
		case "webhook":
			channels = append(channels, notify.NewWebhookChannel(cfg.Notify.WebhookURL))
		}
	}
	return channels
}
