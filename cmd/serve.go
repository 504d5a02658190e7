package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wheelerbb/gcp-invoice-intel/internal/config"
	"github.com/wheelerbb/gcp-invoice-intel/internal/ledger"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
	"github.com/wheelerbb/gcp-invoice-intel/internal/monitoring"
	"github.com/wheelerbb/gcp-invoice-intel/internal/pipeline"
	"github.com/wheelerbb/gcp-invoice-intel/internal/source"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the object-finalized webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Storage.Root == "" {
			return eris.New("serve: storage.root is required (INVOICE_STORAGE_ROOT)")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Ledger, time.Duration(cfg.Ledger.StaleAfterSecs)*time.Second)
		srvState := &server{
			ctx:       ctx,
			proc:      env.Processor,
			ledger:    env.Ledger,
			storage:   cfg.Storage,
			gather:    env.Registry,
			collector: collector,
			lookback:  cfg.Monitoring.LookbackWindowHours,
		}

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srvState.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		srvState.wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// server handles webhook and ledger requests.
type server struct {
	// ctx bounds background processing; it ends at shutdown.
	ctx     context.Context
	proc    processor
	ledger  ledger.Ledger
	storage config.StorageConfig
	gather  prometheus.Gatherer

	collector *monitoring.Collector
	lookback  int

	wg sync.WaitGroup
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Post("/events/object-finalized", s.objectFinalized)
		r.Get("/ledger/{fingerprint}", s.ledgerLookup)
		r.Get("/monitoring/snapshot", s.snapshot)
	})
	return r
}

// wait blocks until background attempts finish.
func (s *server) wait() { s.wg.Wait() }

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.collector.Collect(r.Context(), s.lookback)
	if err != nil {
		zap.L().Error("monitoring snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// objectEvent is the storage notification payload.
type objectEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

func (s *server) objectFinalized(w http.ResponseWriter, r *http.Request) {
	var ev objectEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if ev.Bucket == "" || ev.Name == "" {
		writeError(w, http.StatusBadRequest, "bucket and name are required")
		return
	}

	mode, path, err := resolveObject(s.storage, ev.Bucket, ev.Name)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := zap.L().With(zap.String("bucket", ev.Bucket), zap.String("object", ev.Name))

		doc, err := source.LoadFile(path)
		if err != nil {
			log.Error("webhook: load object", zap.Error(err))
			return
		}

		opts := pipeline.Options{Mode: mode, StoragePath: ev.Bucket + "/" + ev.Name}
		res, err := s.proc.Process(s.ctx, doc, opts)
		if err != nil {
			log.Error("webhook: processing failed", zap.Error(err))
			return
		}
		log.Info("webhook: object handled", zap.String("status", string(res.Status)))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"mode":   string(mode),
		"object": ev.Bucket + "/" + ev.Name,
	})
}

// fileInventory summarizes every attempt for one fingerprint in one mode.
type fileInventory struct {
	Mode      model.Mode         `json:"processing_mode"`
	Attempts  int                `json:"attempts"`
	Status    model.FileStatus   `json:"last_status"`
	Succeeded *model.FileRecord  `json:"succeeded_attempt,omitempty"`
	History   []model.FileRecord `json:"history"`
}

func (s *server) ledgerLookup(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fingerprint")

	modes := []model.Mode{model.ModeProduction, model.ModeAdhoc}
	if m := r.URL.Query().Get("mode"); m != "" {
		mode, err := model.ParseMode(m)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		modes = []model.Mode{mode}
	}

	var out []fileInventory
	for _, mode := range modes {
		recs, err := s.ledger.List(r.Context(), mode, ledger.Filter{Fingerprint: fp})
		if err != nil {
			zap.L().Error("ledger lookup failed", zap.String("fingerprint", fp), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "ledger lookup failed")
			return
		}
		if len(recs) == 0 {
			continue
		}
		out = append(out, inventory(mode, recs))
	}
	if len(out) == 0 {
		writeError(w, http.StatusNotFound, "fingerprint not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fingerprint": fp, "modes": out})
}

// inventory folds attempts, newest first, into a summary.
func inventory(mode model.Mode, recs []model.FileRecord) fileInventory {
	inv := fileInventory{Mode: mode, Attempts: len(recs), Status: recs[0].Status, History: recs}
	for i := range recs {
		if recs[i].Status == model.FileStatusSucceeded {
			inv.Succeeded = &recs[i]
			break
		}
	}
	return inv
}

// resolveObject maps a bucket to a processing mode and an object to a file
// under the storage root.
func resolveObject(st config.StorageConfig, bucket, name string) (model.Mode, string, error) {
	var mode model.Mode
	switch bucket {
	case "":
		return "", "", eris.New("empty bucket")
	case st.ProductionBucket:
		mode = model.ModeProduction
	case st.AdhocBucket:
		mode = model.ModeAdhoc
	default:
		return "", "", eris.Errorf("bucket %q is not configured for processing", bucket)
	}
	rel := filepath.FromSlash(name)
	if !filepath.IsLocal(rel) {
		return "", "", eris.Errorf("object name %q escapes the bucket", name)
	}
	return mode, filepath.Join(st.Root, bucket, rel), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
