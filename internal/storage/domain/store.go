package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrObjectExists means the target path already holds an object. Uploads
	// are create-only; a collision is a failure, never a silent replace.
	ErrObjectExists = errors.New("object already exists at path")
	ErrUnauthorized = errors.New("object store rejected credentials")
)

// StoreError carries the provider's response for failures that fit no
// sentinel.
type StoreError struct {
	StatusCode int
	Body       string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("object store error: status %d: %s", e.StatusCode, e.Body)
}

// ObjectStore writes a blob and returns its long-lived public URL. No
// internal retries; retry policy belongs to the caller.
type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
}
