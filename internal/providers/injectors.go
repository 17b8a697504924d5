package providers

import (
	"strings"
	"time"
)

// QueryParam injects the secret as a query parameter.
type QueryParam struct {
	Service  string
	Param    string
	CacheFor time.Duration
}

func (q QueryParam) Name() string       { return q.Service }
func (q QueryParam) TTL() time.Duration { return q.CacheFor }

func (q QueryParam) Inject(secret string, req *Request) {
	if req.Params == nil {
		req.Params = make(map[string]string)
	}
	req.Params[q.Param] = secret
}

// Header injects the secret as a header value, optionally behind a scheme
// prefix such as "token ".
type Header struct {
	Service string
	Key     string
	Prefix  string
	// Skip lists secret values that mean "no credential configured".
	Skip     []string
	CacheFor time.Duration
}

func (h Header) Name() string       { return h.Service }
func (h Header) TTL() time.Duration { return h.CacheFor }

func (h Header) Inject(secret string, req *Request) {
	if secret == "" {
		return
	}
	for _, s := range h.Skip {
		if secret == s {
			return
		}
	}
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	req.Headers[h.Key] = h.Prefix + secret
}

// PathPrefix places the secret as the first path segment.
type PathPrefix struct {
	Service  string
	CacheFor time.Duration
}

func (p PathPrefix) Name() string       { return p.Service }
func (p PathPrefix) TTL() time.Duration { return p.CacheFor }

func (p PathPrefix) Inject(secret string, req *Request) {
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req.Path = "/" + secret + path
}
