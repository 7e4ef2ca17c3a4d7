// Package blob stores attachment, inline-image and archive bytes and hands
// back a location usable in rendered output.
package blob

import "context"

// Store writes named byte blobs. Put is idempotent for a given name: writing
// the same name twice keeps one copy and returns the same location.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}
