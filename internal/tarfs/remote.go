package tarfs

import (
	"context"

	"github.com/NeurodataWithoutBorders/lindi/internal/fetch"
)

// remoteReaderAt adapts a Fetcher's context-carrying Fetch method to the
// context-free io.ReaderAt a Container needs. It is read-only: remote LINDI
// containers are opened for reading, never grown directly (growth happens
// through a local staging area and re-upload; spec §6 non-goal "no
// remote-write support").
type remoteReaderAt struct {
	ctx     context.Context
	fetcher *fetch.Fetcher
	url     string
}

// NewRemoteReaderAt wraps a Fetcher and URL as an io.ReaderAt suitable for
// Open. The context given here is used for every ReadAt call made through
// it; callers that need per-call cancellation should open a fresh container
// per context instead.
func NewRemoteReaderAt(ctx context.Context, fetcher *fetch.Fetcher, url string) *remoteReaderAt {
	return &remoteReaderAt{ctx: ctx, fetcher: fetcher, url: url}
}

func (r *remoteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	data, err := r.fetcher.Fetch(r.ctx, r.url, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	return n, nil
}
