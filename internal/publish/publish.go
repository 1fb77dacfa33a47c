// Package publish copies the final artifacts of a run to a blob store so
// that reports can be served from outside the machine that ran the checks.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Driver names.
const (
	DriverFS = "fs"
	DriverS3 = "s3"
)

// Info describes a stored object.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the minimal blob surface publishing needs. Put overwrites.
type Store interface {
	Driver() string
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	List(ctx context.Context, prefix string) ([]Info, error)
}

// Config selects and configures a store.
type Config struct {
	Driver string   `koanf:"driver"`
	Prefix string   `koanf:"prefix"`
	FS     FSConfig `koanf:"fs"`
	S3     S3Config `koanf:"s3"`
}

// Open constructs the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverFS:
		return NewFS(cfg.FS.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown publish driver %q (available: %s, %s)", cfg.Driver, DriverFS, DriverS3)
	}
}

// Key joins prefix, run id and file name into an object key.
func Key(prefix, runID, name string) string {
	return path.Join(strings.Trim(prefix, "/"), runID, name)
}

// Publish uploads the named files from dir under <prefix>/<runID>/.
func Publish(ctx context.Context, store Store, prefix, runID, dir string, names []string, logger *slog.Logger) ([]Info, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	out := make([]Info, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return out, fmt.Errorf("failed to read %s: %w", name, err)
		}
		key := Key(prefix, runID, name)
		info, err := store.Put(ctx, key, bytes.NewReader(data), contentType(name))
		if err != nil {
			return out, fmt.Errorf("failed to publish %s to %s: %w", name, store.Driver(), err)
		}
		logger.Info("published artifact",
			slog.String("driver", store.Driver()),
			slog.String("key", key),
			slog.Int64("size", info.Size))
		out = append(out, info)
	}
	return out, nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
