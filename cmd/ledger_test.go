//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

func sampleAttempts() []model.FileRecord {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []model.FileRecord{
		{Mode: model.ModeProduction, Fingerprint: "0123456789abcdef", Attempt: 2, Status: model.FileStatusSucceeded, OriginalFilename: "a.pdf", StartedAt: started, RecordKeys: []string{"k"}},
		{Mode: model.ModeProduction, Fingerprint: "0123456789abcdef", Attempt: 1, Status: model.FileStatusFailed, OriginalFilename: "a.pdf", StartedAt: started.Add(-time.Hour), Error: "extraction failed"},
	}
}

func TestPrintAttempts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printAttempts(&buf, sampleAttempts()))

	out := buf.String()
	assert.Contains(t, out, "MODE")
	assert.Contains(t, out, "0123456789ab")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "extraction failed")
	assert.Contains(t, out, "2024-05-01T12:00:00Z")
}

func TestPrintInventory(t *testing.T) {
	var buf bytes.Buffer
	printInventory(&buf, "0123456789abcdef", model.ModeProduction, sampleAttempts())
	printInventory(&buf, "0123456789abcdef", model.ModeAdhoc, sampleAttempts())

	out := buf.String()
	assert.Contains(t, out, "production 0123456789ab: 2 attempts, last succeeded, succeeded on attempt 2")
	assert.Contains(t, out, "adhoc 0123456789ab: never seen")
}

func TestInventory_NoSuccess(t *testing.T) {
	recs := sampleAttempts()[1:]
	inv := inventory(model.ModeProduction, recs)
	assert.Equal(t, 1, inv.Attempts)
	assert.Equal(t, model.FileStatusFailed, inv.Status)
	assert.Nil(t, inv.Succeeded)
}
