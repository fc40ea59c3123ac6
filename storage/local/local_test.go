package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) (inputDir, outputDir string) {
	t.Helper()
	return t.TempDir(), t.TempDir()
}

func TestStorage_List(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  []string
	}{
		{
			name:  "empty directory",
			files: []string{},
			want:  nil,
		},
		{
			name:  "sorted by name",
			files: []string{"file2.txt", "file10.txt", "file1.txt"},
			want:  []string{"file1.txt", "file10.txt", "file2.txt"},
		},
		{
			name:  "with subdirectory",
			files: []string{"file1.txt", "subdir/"},
			want:  []string{"file1.txt"},
		},
		{
			name:  "staged output skipped",
			files: []string{"a.txt", ".out.txt.pending"},
			want:  []string{"a.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputDir, outputDir := setupTest(t)

			for _, f := range tt.files {
				if filepath.Ext(f) == "" {
					require.NoError(t, os.MkdirAll(filepath.Join(inputDir, f), 0o700))
				} else {
					require.NoError(t, os.WriteFile(filepath.Join(inputDir, f), []byte("a 1\n"), 0o600))
				}
			}

			s := NewStorage(inputDir, outputDir)
			files, err := s.List(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.want, files)
		})
	}
}

func TestStorage_ListErrors(t *testing.T) {
	s := NewStorage(filepath.Join(t.TempDir(), "missing"), t.TempDir())
	_, err := s.List(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewStorage(t.TempDir(), t.TempDir()).List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStorage_Open(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		setup   func(string) error
		wantErr bool
	}{
		{
			name: "valid file open",
			path: "test.txt",
			setup: func(dir string) error {
				return os.WriteFile(filepath.Join(dir, "test.txt"), []byte("hello world"), 0o600)
			},
		},
		{
			name:    "non-existent file",
			path:    "nonexistent.txt",
			setup:   func(string) error { return nil },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputDir, outputDir := setupTest(t)
			require.NoError(t, tt.setup(inputDir))

			s := NewStorage(inputDir, outputDir)
			reader, err := s.Open(context.Background(), tt.path)

			if tt.wantErr {
				assert.ErrorIs(t, err, os.ErrNotExist)
				return
			}

			require.NoError(t, err)
			defer reader.Close()

			content, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.Equal(t, "hello world", string(content))
		})
	}
}

func TestStorage_CreatePublish(t *testing.T) {
	inputDir, outputDir := setupTest(t)
	s := NewStorage(inputDir, outputDir)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(s.Path("out.txt"), []byte("stale"), 0o600))

	w, err := s.Create(ctx, "out.txt")
	require.NoError(t, err)
	_, err = io.WriteString(w, "a 4\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	content, err := os.ReadFile(s.Path("out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "stale", string(content), "output replaced before publish")

	require.NoError(t, s.Publish(ctx, "out.txt"))

	content, err = os.ReadFile(s.Path("out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a 4\n", string(content))

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStorage_Discard(t *testing.T) {
	inputDir, outputDir := setupTest(t)
	s := NewStorage(inputDir, outputDir)
	ctx := context.Background()

	w, err := s.Create(ctx, "out.txt")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, s.Discard(ctx, "out.txt"))
	require.NoError(t, s.Discard(ctx, "out.txt"))

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Error(t, s.Publish(ctx, "out.txt"))
}
