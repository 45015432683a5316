package param

import (
	"context"
	"errors"
)

type Fetcher interface {
	Fetch(context.Context, string) (string, error)
}

var ErrNotFound = errors.New("parameter not found")

// FetchOptional fetches path and treats an empty path or a missing parameter as
// an empty value.
func FetchOptional(ctx context.Context, f Fetcher, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	value, err := f.Fetch(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return value, err
}
