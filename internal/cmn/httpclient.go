package cmn

import (
	"net"
	"net/http"
	"time"
)

// TransportArgs configures NewClient. The orchestrator's torrent-file fetches
// go through a client built once per configuration and reused, rather than a fresh
// client (and transport, and connection pool) per request.
type TransportArgs struct {
	Timeout         time.Duration
	DialTimeout     time.Duration
	IdleConnTimeout time.Duration
	SkipVerify      bool
}

// NewClient builds an *http.Client with conservative, explicit timeouts.
// Unlike http.DefaultClient it never blocks forever on a hung seedbox.
func NewClient(args TransportArgs) *http.Client {
	if args.Timeout == 0 {
		args.Timeout = 30 * time.Second
	}
	if args.DialTimeout == 0 {
		args.DialTimeout = 10 * time.Second
	}
	if args.IdleConnTimeout == 0 {
		args.IdleConnTimeout = 90 * time.Second
	}
	dialer := &net.Dialer{Timeout: args.DialTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		IdleConnTimeout:     args.IdleConnTimeout,
		MaxIdleConnsPerHost: 8,
	}
	if args.SkipVerify {
		transport.TLSClientConfig = insecureTLSConfig()
	}
	return &http.Client{
		Timeout:   args.Timeout,
		Transport: transport,
	}
}
