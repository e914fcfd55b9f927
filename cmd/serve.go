package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/normalize"
	"github.com/pantrysense/pantry-cli/internal/scheduler"
	"github.com/pantrysense/pantry-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  "Serves the inventory and alert API and accepts detector batches over HTTP. Runs the periodic re-evaluation loop alongside the server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Re-evaluate expiry statuses in the background while serving.
		interval := time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute
		go scheduler.New(interval, env.Pipeline.Tick).Run(ctx)

		r := newRouter(env)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go drainOnCancel(ctx, srv, 10*time.Second)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// drainOnCancel shuts srv down once ctx is cancelled. The signal context
// is already dead at that point, so the drain gets its own timeout.
func drainOnCancel(ctx context.Context, srv *http.Server, timeout time.Duration) {
	<-ctx.Done()
	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func newRouter(env *pantryEnv) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/scan", handleScan(env))
		r.Get("/items", handleListItems(env))
		r.Post("/items/{id}/consume", handleConsume(env))
		r.Get("/alerts", handleListAlerts(env))
		r.Post("/alerts/{id}/ack", handleAck(env))
		r.Get("/stats", handleStats(env))
	})

	return r
}

func handleScan(env *pantryEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SourceID   string                   `json:"source_id"`
			Detections []normalize.RawDetection `json:"detections"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Detections) == 0 {
			respondError(w, http.StatusBadRequest, "detections are required")
			return
		}

		session := model.ScanSession{
			ID:        uuid.NewString(),
			SourceID:  req.SourceID,
			Timestamp: time.Now().UTC(),
		}

		report, err := env.Pipeline.Scan(r.Context(), session, req.Detections)
		if err != nil {
			zap.L().Error("scan failed", zap.String("session", session.ID), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		respondJSON(w, http.StatusOK, report)
	}
}

func handleListItems(env *pantryEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.ItemFilter{
			Status:          model.Status(q.Get("status")),
			Category:        model.Category(q.Get("category")),
			Location:        q.Get("location"),
			ExpiringWithin:  queryInt(q.Get("expiring_within")),
			IncludeConsumed: q.Get("all") == "true",
			Limit:           queryInt(q.Get("limit")),
		}

		items, err := env.Store.ListItems(r.Context(), filter)
		if err != nil {
			zap.L().Error("list items failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "list items failed")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	}
}

func handleConsume(env *pantryEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := env.Pipeline.Consume(r.Context(), id, time.Now().UTC()); err != nil {
			respondError(w, http.StatusNotFound, "item not found or already consumed")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "consumed", "id": id})
	}
}

func handleListAlerts(env *pantryEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.AlertFilter{
			FoodItemID: q.Get("item"),
			Level:      model.AlertLevel(q.Get("level")),
			State:      model.AlertState(q.Get("state")),
			OpenOnly:   q.Get("all") != "true" && q.Get("state") == "",
			Limit:      queryInt(q.Get("limit")),
		}

		alerts, err := env.Store.ListAlerts(r.Context(), filter)
		if err != nil {
			zap.L().Error("list alerts failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "list alerts failed")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
	}
}

func handleAck(env *pantryEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := env.Engine.Acknowledge(r.Context(), id); err != nil {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "acknowledged", "id": id})
	}
}

func handleStats(env *pantryEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := queryInt(r.URL.Query().Get("days"))
		if days <= 0 {
			days = 30
		}

		stats, err := env.Store.WasteStats(r.Context(), days)
		if err != nil {
			zap.L().Error("waste stats failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "waste stats failed")
			return
		}
		respondJSON(w, http.StatusOK, stats)
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func queryInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
