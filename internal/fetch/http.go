package fetch

import (
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

var (
	// DefaultMaxConnsPerHost is the default maximum number of connections per
	// host in the process-wide connection pool shared by every store opened
	// against a given remote. The client owning that pool is created once,
	// when the package is initialized, not on first use.
	DefaultMaxConnsPerHost = 512

	// DefaultMaxIdleConnsPerHost bounds how many idle keep-alive connections
	// per host are retained between chunk fetches.
	DefaultMaxIdleConnsPerHost = 128

	// DefaultKeepAlive is the keep-alive period for HTTP connections to
	// remote chunk sources.
	DefaultKeepAlive = 90 * time.Second

	// DefaultTimeout bounds a single range request; it is independent of the
	// retry budget in fetcher.go, which bounds the whole fetch() call.
	DefaultTimeout = 30 * time.Second
)

// NewHTTPTransport builds the transport used by the process-wide HTTP
// client.
func NewHTTPTransport() *http.Transport {
	return &http.Transport{
		IdleConnTimeout:     time.Minute,
		MaxConnsPerHost:     DefaultMaxConnsPerHost,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		MaxIdleConns:        0,
		Proxy:               http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// NewHTTPClient returns the process-wide HTTP client used for all remote
// chunk fetches. Safe for concurrent use.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: gzhttp.Transport(NewHTTPTransport()),
	}
}

var globalHTTPClient = NewHTTPClient()
