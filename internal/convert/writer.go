package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/a3tai/protocol2bids/internal/resolve"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755

	// defaultName is used when the output path is a directory
	defaultName = "protocol.json"
)

// OutputPaths names the files of n sidecars. Without an output path the
// input path is used with a .json extension. An output path without
// extension is a directory. Several sidecars are numbered from 1 after
// the file stem: out1.json, out2.json...
func OutputPaths(input, output string, n int) []string {
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".json"
	}
	if filepath.Ext(output) == "" {
		output = filepath.Join(output, defaultName)
	}
	if n == 1 {
		return []string{output}
	}
	ext := filepath.Ext(output)
	stem := strings.TrimSuffix(output, ext)
	paths := make([]string, n)
	for i := range paths {
		paths[i] = stem + strconv.Itoa(i+1) + ext
	}
	return paths
}

// EncodeSidecar renders a sidecar as indented JSON
func EncodeSidecar(sidecar *resolve.Sidecar) ([]byte, error) {
	data, err := json.MarshalIndent(sidecar, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteSidecars writes each sidecar to the matching path, creating
// parent directories. Files are replaced atomically.
func WriteSidecars(ctx context.Context, paths []string, sidecars []*resolve.Sidecar) error {
	if len(paths) != len(sidecars) {
		return fmt.Errorf("%d paths for %d sidecars", len(paths), len(sidecars))
	}
	for i, sidecar := range sidecars {
		data, err := EncodeSidecar(sidecar)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", paths[i], err)
		}
		if err := writeFile(ctx, paths[i], data); err != nil {
			return fmt.Errorf("failed to write %s: %w", paths[i], err)
		}
	}
	return nil
}

// writeFile writes data to a temporary file next to dest, then renames it
func writeFile(ctx context.Context, dest string, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, filePerm)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
