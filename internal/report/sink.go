// Package report persists RunReports for external consumers. The engine only
// produces plain structured values; this file sink is the default adapter
// when no other persistence collaborator is wired in.
package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/attachflow/attachflow/internal/models"
)

// Sink consumes finished run reports.
type Sink interface {
	Store(report *models.RunReport) error
}

// FileSink writes one JSON document per run report.
type FileSink struct {
	storagePath string
	logger      *slog.Logger
	mu          sync.Mutex
}

// NewFileSink creates a file-based report sink rooted at storagePath.
func NewFileSink(storagePath string, logger *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &FileSink{
		storagePath: storagePath,
		logger:      logger,
	}, nil
}

// Store writes the report as <rule>-<run id>.json.
func (f *FileSink) Store(report *models.RunReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	filename := fmt.Sprintf("%s-%s.json", report.RuleName, report.ID)
	path := filepath.Join(f.storagePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}

	f.logger.Debug("stored run report",
		"rule", report.RuleName,
		"run_id", report.ID,
		"path", path,
	)
	return nil
}
