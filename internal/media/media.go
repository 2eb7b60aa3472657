// Package media stores uploaded profile images. Records only keep the
// storage key; URL turns a key into something a client can fetch.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidKey is returned for empty keys or keys escaping the store root.
var ErrInvalidKey = errors.New("media: invalid key")

// Store is the image storage backend.
type Store interface {
	// Put stores size bytes read from r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// URL returns the public URL for key.
	URL(key string) string
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// Config selects and configures a Store backend.
type Config struct {
	Type      string // local, s3, minio
	BasePath  string // local
	BaseURL   string // public URL prefix; derived from the endpoint when empty
	Bucket    string // s3, minio
	Region    string // s3, minio
	Endpoint  string // s3 (optional, for S3-compatible services), minio
	AccessKey string
	SecretKey string
	UseSSL    bool // minio
}

// New creates the Store described by cfg.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStore(cfg.BasePath, cfg.BaseURL)
	case "s3":
		return NewS3Store(ctx, cfg)
	case "minio":
		return NewMinIOStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported media store type: %s", cfg.Type)
	}
}

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImageType sniffs data and reports its content type if it is one of
// the accepted image formats.
func DetectImageType(data []byte) (string, bool) {
	ct := http.DetectContentType(data)
	_, ok := allowedImageTypes[ct]
	return ct, ok
}

// NewKey builds a unique object key "<prefix>/<uuid><ext>" for an image of
// the given content type.
func NewKey(prefix, contentType string) string {
	return path.Join(prefix, uuid.NewString()+allowedImageTypes[contentType])
}

// cleanKey normalises key and rejects anything that could escape the root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + key)
	if key == "" || k == "/" || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return strings.TrimPrefix(k, "/"), nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
