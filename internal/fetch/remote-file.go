package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// httpRangeRead issues a single byte-range GET for [offset, offset+len(p))
// and fills p. It does not retry; retrying with backoff is the Fetcher's
// job (§4.4), not this function's — unlike the teacher's remoteReadAt,
// which interleaves both concerns.
//
// Adapted from the teacher's split-car-fetcher/remote-file.go.
func httpRangeRead(ctx context.Context, client *http.Client, url string, p []byte, offset int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("lindi: building range request for %q: %w", url, err)
	}
	req.Header.Set("Connection", "keep-alive")
	end := offset + int64(len(p)) - 1
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, end))

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("lindi: range GET %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("lindi: unexpected status %d for %q", resp.StatusCode, url)
	}

	n, err := io.ReadFull(resp.Body, p)
	if err != nil && err != io.ErrUnexpectedEOF {
		return n, fmt.Errorf("lindi: reading range body for %q: %w", url, err)
	}
	if n != len(p) {
		return n, fmt.Errorf("lindi: short read from %q: got %d bytes, wanted %d", url, n, len(p))
	}
	return n, nil
}

// httpContentLength determines the size of a remote resource via HEAD,
// falling back to a one-byte range GET (bytes=0-0).
//
// Adapted from the teacher's getContentSize in split-car-fetcher/remote-file.go.
func httpContentLength(ctx context.Context, client *http.Client, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err == nil {
		if resp, herr := client.Do(req); herr == nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK && resp.ContentLength > 0 {
				return resp.ContentLength, nil
			}
		}
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("lindi: probing size of %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return resp.ContentLength, nil
	}
	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("lindi: unexpected status %d probing size of %q", resp.StatusCode, url)
	}

	contentRange := resp.Header.Get("Content-Range")
	if contentRange == "" {
		return 0, fmt.Errorf("lindi: missing Content-Range for %q", url)
	}
	slash := -1
	for i := len(contentRange) - 1; i >= 0; i-- {
		if contentRange[i] == '/' {
			slash = i
			break
		}
	}
	if slash < 0 || slash == len(contentRange)-1 {
		return 0, fmt.Errorf("lindi: invalid Content-Range %q for %q", contentRange, url)
	}
	total, err := strconv.ParseInt(contentRange[slash+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("lindi: invalid Content-Range total in %q: %w", contentRange, err)
	}
	return total, nil
}
