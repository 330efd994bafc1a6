// Package audit exports evidence packs: tamper-evident archives of the scan
// logs and guardrail violations over a time range, for compliance review of
// what the orchestrator did and why.
package audit

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/complyon/autonomy/pkg/store"
)

// Manifest describes one evidence pack. Checksums are SHA-256 over the
// JCS canonical form of each file's JSON payload, so a re-serialized but
// semantically identical pack verifies equal.
type Manifest struct {
	GeneratedAt time.Time         `json:"generated_at"`
	RangeStart  time.Time         `json:"range_start"`
	RangeEnd    time.Time         `json:"range_end"`
	ScanLogs    int               `json:"scan_logs"`
	Violations  int               `json:"violations"`
	Checksums   map[string]string `json:"checksums"`
}

// Exporter assembles evidence packs from the store.
type Exporter struct {
	scanLogs   store.ScanLogStore
	violations store.ViolationStore
	now        func() time.Time
}

func NewExporter(scanLogs store.ScanLogStore, violations store.ViolationStore) *Exporter {
	return &Exporter{
		scanLogs:   scanLogs,
		violations: violations,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Export writes a zip evidence pack covering [since, until) to w and
// returns its manifest. The pack holds scan_logs.json, violations.json,
// and manifest.json.
func (e *Exporter) Export(ctx context.Context, w io.Writer, since, until time.Time) (*Manifest, error) {
	logs, err := e.scanLogs.ListScanLogs(ctx, store.ScanLogFilter{
		Since: since,
		Until: until,
		Page:  store.Page{Limit: exportPageLimit},
	})
	if err != nil {
		return nil, fmt.Errorf("export scan logs: %w", err)
	}
	violations, err := e.violations.ListViolations(ctx, store.ViolationFilter{
		Since: since,
		Until: until,
		Page:  store.Page{Limit: exportPageLimit},
	})
	if err != nil {
		return nil, fmt.Errorf("export violations: %w", err)
	}

	m := &Manifest{
		GeneratedAt: e.now(),
		RangeStart:  since,
		RangeEnd:    until,
		ScanLogs:    len(logs),
		Violations:  len(violations),
		Checksums:   make(map[string]string, 2),
	}

	zw := zip.NewWriter(w)
	for _, f := range []struct {
		name    string
		payload any
	}{
		{"scan_logs.json", logs},
		{"violations.json", violations},
	} {
		sum, err := writeEntry(zw, f.name, f.payload)
		if err != nil {
			return nil, err
		}
		m.Checksums[f.name] = sum
	}
	if _, err := writeEntry(zw, "manifest.json", m); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close evidence pack: %w", err)
	}
	return m, nil
}

// Checksum returns the canonical SHA-256 of a JSON payload, hex encoded.
func Checksum(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize for checksum: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func writeEntry(zw *zip.Writer, name string, payload any) (string, error) {
	sum, err := Checksum(payload)
	if err != nil {
		return "", err
	}
	fw, err := zw.Create(name)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	enc := json.NewEncoder(fw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	return sum, nil
}

const exportPageLimit = 10000
