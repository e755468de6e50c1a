// Package storage serves HLS manifests and segments to the development backend from MinIO or from
// a local directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned for objects the store does not hold.
var ErrNotFound = errors.New("media object not found")

// ManifestName is the playlist file of every track.
const ManifestName = "index.m3u8"

// MediaStore holds the HLS files of each track under <trackID>/<name>.
type MediaStore interface {
	Get(ctx context.Context, trackID, name string) ([]byte, string, error)
	Put(ctx context.Context, trackID, name string, data []byte) error
}

// objectKey validates the two path elements and joins them.
func objectKey(trackID, name string) (string, error) {
	for _, part := range []string{trackID, name} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid media path %q/%q", trackID, name)
		}
	}
	return path.Join(trackID, name), nil
}

// ContentType 从文件名推断 HLS 内容类型
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".aac":
		return "audio/aac"
	case ".m4s", ".mp4":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
