package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dealtracker/models"
	"dealtracker/utils"
)

var rawHeader = []string{
	"run_id", "source_url", "product_url", "deal_type", "title", "raw_price",
	"raw_original_price", "raw_rating", "raw_review_count", "availability", "prime", "image_url", "scraped_at",
}

// CSVWriter appends raw extractions to a CSV file so selector drift can be inspected after a run
type CSVWriter struct {
	filePath string
	logger   *utils.Logger
	mu       sync.Mutex
}

// NewCSVWriter creates a new CSVWriter
func NewCSVWriter(filePath string, logger *utils.Logger) *CSVWriter {
	return &CSVWriter{filePath: filePath, logger: logger}
}

// WriteRawExtractions appends one row per extraction, writing the header when the file is new
func (w *CSVWriter) WriteRawExtractions(runID, sourceURL string, raws []models.RawExtraction, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(w.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	_, statErr := os.Stat(w.filePath)
	isNew := os.IsNotExist(statErr)

	file, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if isNew {
		if err := writer.Write(rawHeader); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}

	for _, r := range raws {
		row := []string{
			runID,
			sourceURL,
			str(r.ProductURL),
			r.DealType,
			str(r.Title),
			str(r.CurrentPrice),
			str(r.OriginalPrice),
			str(r.Rating),
			str(r.ReviewCount),
			str(r.Availability),
			fmt.Sprintf("%t", r.PrimeEligible),
			str(r.ImageURL),
			at.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			w.logger.Error("Failed to write CSV row for '%s': %v", str(r.Title), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	w.logger.Debug("Raw extractions written to: %s (%d rows)", w.filePath, len(raws))
	return nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
