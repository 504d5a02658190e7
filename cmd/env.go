package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wheelerbb/gcp-invoice-intel/internal/db"
	"github.com/wheelerbb/gcp-invoice-intel/internal/ledger"
	"github.com/wheelerbb/gcp-invoice-intel/internal/metrics"
	"github.com/wheelerbb/gcp-invoice-intel/internal/pipeline"
	"github.com/wheelerbb/gcp-invoice-intel/internal/sink"
)

// stores holds the ledger and record store opened on one database.
type stores struct {
	Ledger ledger.Ledger
	Sink   sink.Store
	close  func()
}

// Close releases the database handle.
func (s *stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// openStores opens the configured database and runs migrations when
// migrate is set.
func openStores(ctx context.Context, migrate bool) (*stores, error) {
	opts := ledger.OptionsFromConfig(cfg.Ledger)

	var st *stores
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "invoices.db"
		}
		sqlDB, err := db.OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		st = &stores{
			Ledger: ledger.NewSQLite(sqlDB, opts),
			Sink:   sink.NewSQLite(sqlDB),
			close:  func() { _ = sqlDB.Close() },
		}
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st = &stores{
			Ledger: ledger.NewPostgres(pool, opts),
			Sink:   sink.NewPostgres(pool),
			close:  pool.Close,
		}
	case "memory":
		zap.L().Warn("using in-memory store; nothing survives this process")
		st = &stores{Ledger: ledger.NewMemory(opts), Sink: sink.NewMemory()}
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if migrate {
		if err := st.Ledger.Migrate(ctx); err != nil {
			st.Close()
			return nil, eris.Wrap(err, "migrate ledger")
		}
		if err := st.Sink.Migrate(ctx); err != nil {
			st.Close()
			return nil, eris.Wrap(err, "migrate sink")
		}
	}
	return st, nil
}

// appEnv is everything the processing commands share.
type appEnv struct {
	*stores
	Processor *pipeline.Processor
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
}

// initEnv validates config, opens and migrates the stores and wires the
// processor. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate("process"); err != nil {
		return nil, err
	}

	st, err := openStores(ctx, true)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	proc, err := pipeline.FromConfig(cfg, st.Ledger, st.Sink, m)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &appEnv{stores: st, Processor: proc, Registry: reg, Metrics: m}, nil
}
