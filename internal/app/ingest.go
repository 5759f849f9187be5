package app

import (
	"strings"

	"github.com/Lllllllleong/pdfformfiller/internal/config"
	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

// IngestFilter decides which finalized objects start a new session. Only
// objects under <prefix><ingestPrefix> in the configured bucket qualify, so
// the service's own "<id>.pdf" and "<id>_filled.pdf" writes never loop back.
type IngestFilter struct {
	Bucket       string
	Prefix       string
	IngestPrefix string
}

// NewIngestFilter builds a filter from the storage section.
func NewIngestFilter(cfg config.StorageConfig) IngestFilter {
	return IngestFilter{Bucket: cfg.Bucket, Prefix: cfg.Prefix, IngestPrefix: cfg.IngestPrefix}
}

// ObjectName returns the blob-store name for ev, relative to the store's
// prefix, and whether the event should be ingested at all.
func (f IngestFilter) ObjectName(ev models.GCSEvent) (string, bool) {
	if f.IngestPrefix == "" || ev.Bucket != f.Bucket {
		return "", false
	}
	if !strings.HasPrefix(ev.Name, f.Prefix+f.IngestPrefix) || strings.HasSuffix(ev.Name, "/") {
		return "", false
	}
	return strings.TrimPrefix(ev.Name, f.Prefix), true
}
