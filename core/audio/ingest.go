package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"Soundy/logger"
	"Soundy/storage"
)

// Ingest transcodes inputFile and uploads the stream of trackID into store.
func Ingest(ctx context.Context, p Processor, store storage.MediaStore, trackID, inputFile string) (float64, error) {
	tempDir, err := os.MkdirTemp("", "soundy-ingest-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	duration, err := p.ProcessToHLS(ctx, inputFile, tempDir)
	if err != nil {
		return 0, err
	}
	if _, err := UploadDir(ctx, store, trackID, tempDir); err != nil {
		return 0, err
	}
	return duration, nil
}

// UploadDir copies an HLS directory into store under trackID. The manifest goes last, so a reader
// never sees it before its segments. It returns the number of files uploaded.
func UploadDir(ctx context.Context, store storage.MediaStore, trackID, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	hasManifest := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if entry.Name() == storage.ManifestName {
			hasManifest = true
			continue
		}
		names = append(names, entry.Name())
	}
	if !hasManifest {
		return 0, fmt.Errorf("no %s in %s", storage.ManifestName, dir)
	}
	sort.Strings(names)
	names = append(names, storage.ManifestName)

	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return i, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := store.Put(ctx, trackID, name, data); err != nil {
			return i, fmt.Errorf("failed to upload %s: %w", name, err)
		}
	}

	logger.Info("[Audio] 媒体文件上传完成", logger.String("trackId", trackID), logger.Int("files", len(names)))
	return len(names), nil
}
