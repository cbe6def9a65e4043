package blobstore

import (
	"context"
	"errors"
	"os"
	"strings"
)

const (
	ProviderGCS    = "gcs"
	ProviderMemory = "memory"
)

var ErrObjectNotFound = errors.New("object not found")

// Store holds document and image bytes outside the database.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}

func GetProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return ProviderGCS
	}
	return provider
}

// NewFromEnv returns the store selected by STORAGE_PROVIDER.
func NewFromEnv(ctx context.Context) (Store, error) {
	switch p := GetProvider(); p {
	case ProviderMemory:
		return NewMemoryStore(), nil
	case ProviderGCS:
		return NewGCSStore(ctx, os.Getenv("GCS_BUCKET"))
	default:
		return nil, errors.New("unsupported STORAGE_PROVIDER " + p)
	}
}
