// CLAUDE:SUMMARY Entry point for the sentinelle HTTP service — chi router, JSON API, MCP over SSE.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sentinelle"
	"github.com/hazyhaar/sentinelle/internal/alerting"
	"github.com/hazyhaar/sentinelle/internal/escalate"
	"github.com/hazyhaar/sentinelle/internal/store"
)

func main() {
	port := env("PORT", "8090")
	configPath := env("CONFIG", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := &sentinelle.Config{}
	if configPath != "" {
		var err error
		cfg, err = sentinelle.LoadConfigFile(configPath)
		if err != nil {
			slog.Error("load config", "path", configPath, "error", err)
			os.Exit(1)
		}
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	svc, err := sentinelle.New(cfg, nil, logger)
	if err != nil {
		slog.Error("sentinelle service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// MCP over HTTP SSE, mounted at /mcp.
	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    "sentinelle",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(mcpSrv)
	sseHandler := mcp.NewSSEHandler(func(_ *http.Request) *mcp.Server {
		return mcpSrv
	}, nil)

	// Start background loops.
	svc.Start(ctx)

	// Router.
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Mount("/mcp", sseHandler)

	// Documents & events.
	r.Post("/api/documents", func(w http.ResponseWriter, r *http.Request) {
		var doc store.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			writeError(w, 400, err)
			return
		}
		id, err := svc.IngestDocument(r.Context(), &doc)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 201, map[string]string{"id": id})
	})

	r.Post("/api/events/rebuild", func(w http.ResponseWriter, r *http.Request) {
		daysBack := queryInt(r, "days_back", 0)
		created, err := svc.RebuildEvents(r.Context(), daysBack)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, map[string]int{"events_created": created})
	})

	r.Get("/api/events", func(w http.ResponseWriter, r *http.Request) {
		events, err := svc.RecentEvents(r.Context(), queryInt(r, "days_back", 0), queryInt(r, "limit", 0))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, events)
	})

	r.Get("/api/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		ev, docs, err := svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"event": ev, "evidence": docs})
	})

	// Search.
	r.Get("/api/search", func(w http.ResponseWriter, r *http.Request) {
		hits, err := svc.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 0))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, hits)
	})

	r.Post("/api/search/reindex", func(w http.ResponseWriter, r *http.Request) {
		var fromTs *int64
		if v := r.URL.Query().Get("from_ts"); v != "" {
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeError(w, 400, err)
				return
			}
			fromTs = &ts
		}
		indexed, err := svc.RebuildSearchIndex(r.Context(), fromTs)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, map[string]int{"indexed": indexed})
	})

	// Rules.
	r.Route("/api/rules", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var rule store.AlertRule
			if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
				writeError(w, 400, err)
				return
			}
			rule.Enabled = true
			if err := svc.AddRule(r.Context(), &rule); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 201, rule)
		})
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			rules, err := svc.ListRules(r.Context(), r.URL.Query().Get("enabled") == "true")
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, rules)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			rule, err := svc.GetRule(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, rule)
		})
		r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
			var rule store.AlertRule
			if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
				writeError(w, 400, err)
				return
			}
			rule.ID = chi.URLParam(r, "id")
			if err := svc.UpdateRule(r.Context(), &rule); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, rule)
		})
		r.Post("/{id}/enable", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Enabled bool `json:"enabled"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := svc.SetRuleEnabled(r.Context(), chi.URLParam(r, "id"), req.Enabled); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]any{"enabled": req.Enabled})
		})
	})

	r.Post("/api/evaluate", func(w http.ResponseWriter, r *http.Request) {
		created, err := svc.EvaluateNow(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"alerts_created": len(created), "alerts": created})
	})

	// Alerts.
	r.Route("/api/alerts", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			alerts, err := svc.ListAlerts(r.Context(), r.URL.Query().Get("status"), queryInt(r, "limit", 0))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, alerts)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			alert, escalations, err := svc.GetAlert(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]any{"alert": alert, "escalations": escalations})
		})
		r.Post("/{id}/ack", func(w http.ResponseWriter, r *http.Request) {
			alertAction(w, r, svc.AcknowledgeAlert)
		})
		r.Post("/{id}/resolve", func(w http.ResponseWriter, r *http.Request) {
			alertAction(w, r, svc.ResolveAlert)
		})
		r.Post("/{id}/snooze", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Minutes int `json:"minutes"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			err := svc.SnoozeAlert(r.Context(), chi.URLParam(r, "id"), time.Duration(req.Minutes)*time.Minute)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "snoozed"})
		})
		r.Post("/{id}/label", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Label int    `json:"label"`
				Note  string `json:"note"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := svc.LabelAlert(r.Context(), chi.URLParam(r, "id"), req.Label, req.Note); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]int{"label": req.Label})
		})
		r.Post("/{id}/escalate", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Level int `json:"level"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := svc.TriggerEscalationLevel(r.Context(), chi.URLParam(r, "id"), req.Level); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]any{"level": req.Level, "status": "dispatched"})
		})
	})

	// Watchlists.
	r.Route("/api/watchlists", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var wl store.Watchlist
			if err := json.NewDecoder(r.Body).Decode(&wl); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := svc.AddWatchlist(r.Context(), &wl); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 201, wl)
		})
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			lists, err := svc.ListWatchlists(r.Context())
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, lists)
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.DeleteWatchlist(r.Context(), chi.URLParam(r, "id")); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "deleted"})
		})
		r.Post("/{id}/items", func(w http.ResponseWriter, r *http.Request) {
			var item store.WatchlistItem
			if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
				writeError(w, 400, err)
				return
			}
			item.WatchlistID = chi.URLParam(r, "id")
			item.Enabled = true
			if err := svc.AddWatchlistItem(r.Context(), &item); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 201, item)
		})
		r.Get("/{id}/items", func(w http.ResponseWriter, r *http.Request) {
			items, err := svc.ListWatchlistItems(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("enabled") == "true")
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, items)
		})
	})

	r.Delete("/api/watchlist-items/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteWatchlistItem(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, map[string]string{"status": "deleted"})
	})

	// Analytics.
	r.Get("/api/analytics/backtest", func(w http.ResponseWriter, r *http.Request) {
		fromTs, err1 := strconv.ParseInt(r.URL.Query().Get("from_ts"), 10, 64)
		toTs, err2 := strconv.ParseInt(r.URL.Query().Get("to_ts"), 10, 64)
		if err1 != nil || err2 != nil {
			writeJSON(w, 400, map[string]string{"error": "from_ts and to_ts required"})
			return
		}
		report, err := svc.Backtest(r.Context(), fromTs, toTs)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, report)
	})

	r.Get("/api/analytics/graph", func(w http.ResponseWriter, r *http.Request) {
		graph, err := svc.EntityGraph(r.Context(),
			queryInt(r, "days_back", 0), queryInt(r, "max_nodes", 0), queryInt(r, "max_edges", 0))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, graph)
	})

	// Features.
	r.Route("/api/features", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var def store.FeatureDefinition
			if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := svc.AddFeature(r.Context(), &def); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 201, def)
		})
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			defs, err := svc.ListFeatures(r.Context())
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, defs)
		})
		r.Post("/{id}/compute", func(w http.ResponseWriter, r *http.Request) {
			written, err := svc.ComputeFeature(r.Context(), chi.URLParam(r, "id"), queryInt(r, "days_back", 0))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]int{"buckets": written})
		})
		r.Get("/{id}/values", func(w http.ResponseWriter, r *http.Request) {
			fromTs, _ := strconv.ParseInt(r.URL.Query().Get("from_ts"), 10, 64)
			values, err := svc.FeatureValues(r.Context(), chi.URLParam(r, "id"), fromTs)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, values)
		})
	})

	r.Get("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, stats)
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// alertAction runs a one-argument status transition and writes the result.
func alertAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	if err := fn(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeServiceError maps service errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sentinelle.ErrInvalidInput),
		errors.Is(err, escalate.ErrLevelOutOfRange):
		writeError(w, 400, err)
	case errors.Is(err, sentinelle.ErrNotFound),
		errors.Is(err, alerting.ErrNotFound),
		errors.Is(err, escalate.ErrAlertNotFound):
		writeError(w, 404, err)
	case errors.Is(err, alerting.ErrInvalidTransition):
		writeError(w, 409, err)
	default:
		writeError(w, 500, err)
	}
}
