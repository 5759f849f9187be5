// Package blob stores uploaded and synthesized PDF documents.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned (wrapped) when a named object is missing.
var ErrNotExist = errors.New("blob: object does not exist")

// Store holds documents by name. Names are flat: "<sessionId>.pdf" for
// uploads and "<sessionId>_filled.pdf" for synthesized output.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader) error
	// Fetch copies the named object to a local file at dest.
	Fetch(ctx context.Context, name, dest string) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}
