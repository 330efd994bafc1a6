package audit_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyon/autonomy/pkg/audit"
	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/store"
)

func seedEvidence(t *testing.T, st *store.Memory, at time.Time) {
	t.Helper()
	ctx := context.Background()
	done := at.Add(time.Minute)
	require.NoError(t, st.CreateScanLog(ctx, &contracts.ScanLog{
		ID:              uuid.New().String(),
		ScanType:        "autonomous_scan",
		StartedAt:       at,
		CompletedAt:     &done,
		IntentsDetected: 2,
	}))
	require.NoError(t, st.CreateViolation(ctx, &contracts.GuardrailViolation{
		ID:            uuid.New().String(),
		GuardrailType: contracts.GuardrailBudget,
		GuardrailKey:  "max_daily_token_budget",
		Severity:      contracts.SeverityBlock,
		CreatedAt:     at,
	}))
}

func TestExportEvidencePack(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Now().UTC()
	seedEvidence(t, st, now.Add(-time.Hour))
	seedEvidence(t, st, now.Add(-30*24*time.Hour)) // outside the window

	var buf bytes.Buffer
	manifest, err := audit.NewExporter(st, st).Export(ctx, &buf, now.Add(-24*time.Hour), now)
	require.NoError(t, err)

	assert.Equal(t, 1, manifest.ScanLogs)
	assert.Equal(t, 1, manifest.Violations)
	require.Contains(t, manifest.Checksums, "scan_logs.json")
	require.Contains(t, manifest.Checksums, "violations.json")

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	names := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = f
	}
	require.Contains(t, names, "scan_logs.json")
	require.Contains(t, names, "violations.json")
	require.Contains(t, names, "manifest.json")

	// The recorded checksum matches a recomputation over the decoded payload.
	rc, err := names["scan_logs.json"].Open()
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()

	var logs []*contracts.ScanLog
	require.NoError(t, json.Unmarshal(raw, &logs))
	require.Len(t, logs, 1)

	sum, err := audit.Checksum(logs)
	require.NoError(t, err)
	assert.Equal(t, manifest.Checksums["scan_logs.json"], sum)
}

func TestChecksumIsCanonical(t *testing.T) {
	a, err := audit.Checksum(map[string]any{"b": 1, "a": "x"})
	require.NoError(t, err)
	b, err := audit.Checksum(map[string]any{"a": "x", "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestExportEmptyRange(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	var buf bytes.Buffer
	now := time.Now().UTC()
	manifest, err := audit.NewExporter(st, st).Export(ctx, &buf, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Zero(t, manifest.ScanLogs)
	assert.Zero(t, manifest.Violations)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Len(t, zr.File, 3)
}
