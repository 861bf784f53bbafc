package httpclient

import (
	"net"
	"net/http"

	"github.com/brandcraft/server/internal/shared/config"
	"github.com/brandcraft/server/internal/utils/requestctx"
)

// RequestIDHeader is forwarded to generation backends so upstream logs can be joined with ours.
const RequestIDHeader = "X-Request-ID"

// New creates the pooled client shared by the generation backends.
// ResponseTimeout is only a ceiling; each task's deadline travels on the request context.
func New(cfg config.HTTPClientConfig) *http.Client {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &http.Client{
		Transport: &tagTransport{base: base, userAgent: cfg.UserAgent},
		Timeout:   cfg.ResponseTimeout,
	}
}

// tagTransport stamps outgoing requests with the service user agent and the inbound request id.
type tagTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *tagTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := requestctx.RequestID(req.Context())
	if t.userAgent == "" && id == "" {
		return t.base.RoundTrip(req)
	}

	// RoundTrippers must not mutate the caller's request.
	out := req.Clone(req.Context())
	if t.userAgent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", t.userAgent)
	}
	if id != "" && out.Header.Get(RequestIDHeader) == "" {
		out.Header.Set(RequestIDHeader, id)
	}
	return t.base.RoundTrip(out)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the pool.
func (t *tagTransport) CloseIdleConnections() {
	if c, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
