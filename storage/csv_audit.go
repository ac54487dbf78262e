package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"bizharvest/models"
)

// CSVAuditWriter appends normalized listings to a CSV audit trail so scrape
// output can be inspected without a database round-trip. It is safe for
// concurrent use.
type CSVAuditWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVAuditWriter opens (or creates) the audit file at the given path,
// writing the header row for new files. Intermediate directories are
// created automatically.
func NewCSVAuditWriter(path string) (*CSVAuditWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write([]string{
			"id", "source", "name", "industry", "location", "price",
			"confidence", "tags", "scraped_at",
		}); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		w.Flush()
	}

	return &CSVAuditWriter{file: f, writer: w}, nil
}

// Append writes one row per listing.
func (c *CSVAuditWriter) Append(listings []*models.NormalizedListing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		price := ""
		if l.Price != nil {
			price = strconv.FormatFloat(*l.Price, 'f', 2, 64)
		}
		row := []string{
			l.ID,
			l.Source,
			l.Name,
			l.Industry,
			l.Location,
			price,
			strconv.FormatFloat(l.Confidence, 'f', 3, 64),
			strings.Join(l.Tags, ";"),
			l.ScrapedAt.Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVAuditWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
