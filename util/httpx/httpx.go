package httpx

import (
	"io"
	"net"
	"net/http"
	"time"
)

// maxBody caps how much of an upstream response we are willing to buffer.
const maxBody = 1 << 20

var defaultClient = New(10 * time.Second)

// New builds a client for outbound calls to third-party APIs (checkout
// provider, chat bots).
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     60 * time.Second,
		},
	}
}

func Client() *http.Client { return defaultClient }

// ReadBody drains at most maxBody bytes of resp and reports whether the
// status was a 2xx.
func ReadBody(resp *http.Response) ([]byte, bool, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return raw, resp.StatusCode >= 200 && resp.StatusCode < 300, err
}
