package ftpclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ExternalIPResolver discovers the address a NAT gateway maps this host to,
// for building PORT/EPRT commands when ExternalIPMode is
// ExternalIPResolverMode. Grounded on externalipresolver.h: that type opens
// a raw HTTP socket to a configured address once per process and caches the
// result in static fields so every subsequent active-mode transfer reuses
// it. Here an http.Client and a sync.Once give the same one-shot,
// process-wide caching without hand-rolled HTTP parsing.
type ExternalIPResolver struct {
	url    string
	client *http.Client

	once sync.Once
	ip   string
	err  error
}

// NewExternalIPResolver builds a resolver that queries url (expected to
// return the caller's IP as plain text) the first time Resolve is called.
func NewExternalIPResolver(url string) *ExternalIPResolver {
	return &ExternalIPResolver{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Resolve returns the external IP, querying the configured URL at most
// once for the lifetime of the resolver. force re-queries even if a prior
// call already resolved an address.
func (r *ExternalIPResolver) Resolve(ctx context.Context, force bool) (string, error) {
	if force {
		r.once = sync.Once{}
	}

	r.once.Do(func() {
		r.ip, r.err = r.fetch(ctx)
	})

	return r.ip, r.err
}

func (r *ExternalIPResolver) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}

	ip := strings.TrimSpace(string(body))
	if ip == "" {
		return "", NewProtocolError("external IP resolver returned an empty body", StatusError, nil)
	}

	return ip, nil
}
