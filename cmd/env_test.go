//go:build !integration

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelerbb/gcp-invoice-intel/internal/ledger"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

func TestOpenStores_UnsupportedDriver(t *testing.T) {
	cfg = testConfig()
	cfg.Store.Driver = "mysql"

	_, err := openStores(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestOpenStores_Memory(t *testing.T) {
	cfg = testConfig()

	st, err := openStores(context.Background(), true)
	require.NoError(t, err)
	defer st.Close()

	ok, err := st.Ledger.HasSucceeded(context.Background(), model.ModeAdhoc, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenStores_SQLite(t *testing.T) {
	cfg = testConfig()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = filepath.Join(t.TempDir(), "ledger.db")

	st, err := openStores(context.Background(), true)
	require.NoError(t, err)
	defer st.Close()

	recs, err := st.Ledger.List(context.Background(), model.ModeProduction, ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestInitEnv_InvalidConfig(t *testing.T) {
	cfg = testConfig()
	cfg.Refinement.Provider = "anthropic"

	_, err := initEnv(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic_api_key")
}

func TestInitEnv_Memory(t *testing.T) {
	cfg = testConfig()

	env, err := initEnv(context.Background())
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Processor)
	assert.NotNil(t, env.Metrics)
	families, err := env.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMigrateCmd_Memory(t *testing.T) {
	cfg = testConfig()
	migrateCmd.SetContext(context.Background())
	defer migrateCmd.SetContext(nil)

	require.NoError(t, migrateCmd.RunE(migrateCmd, nil))
}

func TestExportCmd_WritesWorkbook(t *testing.T) {
	cfg = testConfig()
	out := filepath.Join(t.TempDir(), "invoices.xlsx")

	var buf bytes.Buffer
	exportCmd.SetContext(context.Background())
	exportCmd.SetOut(&buf)
	defer exportCmd.SetContext(nil)
	defer exportCmd.SetOut(nil)

	require.NoError(t, exportCmd.RunE(exportCmd, []string{out}))
	assert.Contains(t, buf.String(), "0 invoices")
	assert.FileExists(t, out)
}

func TestLedgerCmd_EmptyTable(t *testing.T) {
	cfg = testConfig()

	var buf bytes.Buffer
	ledgerCmd.SetContext(context.Background())
	ledgerCmd.SetOut(&buf)
	defer ledgerCmd.SetContext(nil)
	defer ledgerCmd.SetOut(nil)

	require.NoError(t, ledgerCmd.RunE(ledgerCmd, nil))
	assert.Contains(t, buf.String(), "FINGERPRINT")
}
