// Package local resolves merge inputs and outputs on the local filesystem.
//
// Inputs are the regular files of one directory. Outputs are staged under a
// hidden name next to their final location and moved into place by Publish,
// so a failed merge never leaves a half written file under the output name.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const stagingSuffix = ".pending"

// Storage implements input listing and output staging using the local
// filesystem.
type Storage struct {
	inputDir  string
	outputDir string
}

func NewStorage(inputDir, outputDir string) *Storage {
	return &Storage{
		inputDir:  inputDir,
		outputDir: outputDir,
	}
}

// List returns the names of the regular files in the input directory, sorted
// by name. Subdirectories and staged outputs are skipped.
func (s *Storage) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.inputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.inputDir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), stagingSuffix) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// Open opens an input file for reading.
func (s *Storage) Open(_ context.Context, name string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(s.inputDir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", name, err)
	}
	return file, nil
}

// Create truncates or creates the staging file for the output name.
func (s *Storage) Create(_ context.Context, name string) (io.WriteCloser, error) {
	file, err := os.OpenFile(s.staging(name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", name, err)
	}
	return file, nil
}

// Publish moves the staged output into place, replacing any previous file.
func (s *Storage) Publish(_ context.Context, name string) error {
	if err := os.Rename(s.staging(name), s.Path(name)); err != nil {
		return fmt.Errorf("failed to publish file %s: %w", name, err)
	}
	return nil
}

// Discard removes the staged output. A missing staging file is not an error.
func (s *Storage) Discard(_ context.Context, name string) error {
	err := os.Remove(s.staging(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to discard file %s: %w", name, err)
	}
	return nil
}

// Path returns the published location of an output name.
func (s *Storage) Path(name string) string {
	return filepath.Join(s.outputDir, filepath.Base(name))
}

func (s *Storage) staging(name string) string {
	return filepath.Join(s.outputDir, "."+filepath.Base(name)+stagingSuffix)
}
