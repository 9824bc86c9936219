package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const metaFile = "meta.json"

// LocalArchive implements Archive on the local filesystem. Each batch gets
// its own directory holding the file and a metadata document.
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a new local filesystem archive
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if basePath == "" {
		basePath = "./archive"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalArchive{basePath: basePath}, nil
}

// Archive writes data under the batch directory.
func (s *LocalArchive) Archive(ctx context.Context, batchID uuid.UUID, fileName string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(s.basePath, batchID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create batch directory: %w", err)
	}

	name := sanitizeFilename(filepath.Base(fileName))
	rel := filepath.Join(batchID.String(), name)
	full := filepath.Join(s.basePath, rel)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	sum := sha256.Sum256(data)
	info := &FileInfo{
		BatchID:   batchID,
		Name:      fileName,
		Size:      int64(len(data)),
		SHA256:    hex.EncodeToString(sum[:]),
		Path:      rel,
		CreatedAt: time.Now(),
	}
	if err := s.saveMetadata(info); err != nil {
		os.Remove(full)
		return "", err
	}
	return rel, nil
}

// Open returns the archived file of a batch.
func (s *LocalArchive) Open(ctx context.Context, batchID uuid.UUID) (io.ReadCloser, *FileInfo, error) {
	info, err := s.Info(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.basePath, info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, info, nil
}

// Info reads the metadata of a batch's file.
func (s *LocalArchive) Info(_ context.Context, batchID uuid.UUID) (*FileInfo, error) {
	data, err := os.ReadFile(filepath.Join(s.basePath, batchID.String(), metaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: batch %s", ErrNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &info, nil
}

// Delete removes the batch directory.
func (s *LocalArchive) Delete(ctx context.Context, batchID uuid.UUID) error {
	if _, err := s.Info(ctx, batchID); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.basePath, batchID.String())); err != nil {
		return fmt.Errorf("failed to delete batch files: %w", err)
	}
	return nil
}

func (s *LocalArchive) saveMetadata(info *FileInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	path := filepath.Join(s.basePath, info.BatchID.String(), metaFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	name = replacer.Replace(name)
	if name == "" || name == metaFile {
		name = "statement_" + name
	}
	return name
}
