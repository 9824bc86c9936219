package storage

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalArchive(t *testing.T) {
	ctx := context.Background()
	archive, err := NewLocalArchive(t.TempDir())
	require.NoError(t, err)

	batchID := uuid.New()
	data := []byte("Details,Posting Date,Description,Amount\n")

	path, err := archive.Archive(ctx, batchID, "../Chase1234.csv", data)
	require.NoError(t, err)
	assert.Contains(t, path, batchID.String())
	assert.NotContains(t, path, "..")

	rc, info, err := archive.Open(ctx, batchID)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.Len(t, info.SHA256, 64)

	require.NoError(t, archive.Delete(ctx, batchID))
	_, err = archive.Info(ctx, batchID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"statement.csv", "statement.csv"},
		{"a:b*c?.xls", "a_b_c_.xls"},
		{"meta.json", "statement_meta.json"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFilename(tt.in))
		})
	}
}
