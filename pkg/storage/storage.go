// Package storage archives committed statement files.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("archived file not found")

// FileInfo contains metadata about an archived file
type FileInfo struct {
	BatchID   uuid.UUID `json:"batch_id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"`
	Path      string    `json:"path"` // relative to the archive root
	CreatedAt time.Time `json:"created_at"`
}

// Archive stores the source file of each import batch.
type Archive interface {
	// Archive writes data for batchID and returns the stored path.
	Archive(ctx context.Context, batchID uuid.UUID, fileName string, data []byte) (string, error)

	// Open returns the archived file of a batch.
	Open(ctx context.Context, batchID uuid.UUID) (io.ReadCloser, *FileInfo, error)

	// Info returns the metadata of a batch's file without opening it.
	Info(ctx context.Context, batchID uuid.UUID) (*FileInfo, error)

	// Delete removes the archived file of a batch.
	Delete(ctx context.Context, batchID uuid.UUID) error
}

// Config holds storage configuration
type Config struct {
	// Disabled turns archiving off.
	Disabled  bool   `yaml:"disabled"`
	LocalPath string `yaml:"local_path"`
}

// New creates the configured archive, or nil when archiving is disabled.
func New(cfg Config) (Archive, error) {
	if cfg.Disabled {
		return nil, nil
	}
	return NewLocalArchive(cfg.LocalPath)
}
