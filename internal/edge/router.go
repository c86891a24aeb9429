// Package edge routes inbound requests to project backends by Host header.
//
// Three disjoint rules, evaluated in order:
//  1. Hosts under the platform root domain route by their first label:
//     reserved labels are rejected, external proxy labels rewrite to a fixed
//     host with no lookup, everything else resolves to a project by
//     subdomain.
//  2. Any other host resolves to a custom domain record, which must be
//     ACTIVE.
//  3. No match is a 404.
//
// Every lookup failure fails closed to a small JSON 404; the router never
// falls open to a default origin, whatever an arbitrary Host header says.
package edge

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"relaypad/internal/edge/metrics"
	"relaypad/internal/platform/config"
	"relaypad/internal/registry"
	"relaypad/pkg/hostname"
)

// reservedSubdomains are platform surfaces that never route to customer
// backends. The reservation applies only under the platform root domain.
var reservedSubdomains = map[string]struct{}{
	"www":       {},
	"api":       {},
	"app":       {},
	"admin":     {},
	"dashboard": {},
	"docs":      {},
}

type targetKey struct{}

// Router resolves Host headers to backends and proxies matched requests.
type Router struct {
	domains       registry.DomainReader
	projects      registry.ProjectReader
	rootDomain    string
	proxies       map[string]string
	lookupTimeout time.Duration
	cache         *gocache.Cache
	proxy         *httputil.ReverseProxy
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type Option func(r *Router)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// New constructs a Router over the given registry readers.
func New(domains registry.DomainReader, projects registry.ProjectReader, cfg config.Edge, opts ...Option) *Router {
	r := &Router{
		domains:       domains,
		projects:      projects,
		rootDomain:    strings.ToLower(cfg.PlatformRootDomain),
		proxies:       cfg.ExternalProxies,
		lookupTimeout: cfg.LookupTimeout,
		cache:         gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			target := pr.In.Context().Value(targetKey{}).(*url.URL)
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Set("X-Forwarded-Host", pr.In.Host)
			pr.Out.Host = target.Host
		},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			DialContext: (&net.Dialer{
				Timeout: cfg.RequestTimeout,
			}).DialContext,
			ResponseHeaderTimeout: cfg.RequestTimeout,
			MaxIdleConnsPerHost:   32,
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			r.logger.WarnContext(req.Context(), "backend unreachable",
				"host", req.Host, "error", err)
			writeError(w, http.StatusBadGateway, "bad_gateway", "the application backend did not respond")
		},
	}
	return r
}

// ServeHTTP implements the routing rules for one inbound request.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	host := normalizeHost(req.Host)
	if host == "" || host == r.rootDomain {
		r.reject(w, http.StatusNotFound, "not_found", "no application is configured for this host")
		return
	}

	if strings.HasSuffix(host, "."+r.rootDomain) {
		r.routeSubdomain(w, req, hostname.FirstLabel(host))
		return
	}

	r.routeCustomDomain(w, req, host)
}

func (r *Router) routeSubdomain(w http.ResponseWriter, req *http.Request, sub string) {
	if _, ok := reservedSubdomains[sub]; ok {
		r.reject(w, http.StatusBadRequest, "bad_request", "this subdomain is reserved")
		return
	}

	if external, ok := r.proxies[sub]; ok {
		r.forward(w, req, &url.URL{Scheme: "https", Host: external})
		return
	}

	project, ok := r.lookupProject(req.Context(), sub)
	if !ok || !project.Routable() {
		r.reject(w, http.StatusNotFound, "not_found", "no application is configured for this host")
		return
	}
	target, err := url.Parse(project.BackendURL)
	if err != nil {
		r.logger.ErrorContext(req.Context(), "invalid backend url", "subdomain", sub, "error", err)
		r.reject(w, http.StatusNotFound, "not_found", "no application is configured for this host")
		return
	}
	r.forward(w, req, target)
}

func (r *Router) routeCustomDomain(w http.ResponseWriter, req *http.Request, host string) {
	record, ok := r.lookupDomain(req.Context(), host)
	if !ok || record.Status != registry.StatusActive || record.BackendURL == "" {
		r.reject(w, http.StatusNotFound, "not_found", "no application is configured for this host")
		return
	}
	target, err := url.Parse(record.BackendURL)
	if err != nil {
		r.logger.ErrorContext(req.Context(), "invalid backend url", "domain", host, "error", err)
		r.reject(w, http.StatusNotFound, "not_found", "no application is configured for this host")
		return
	}
	r.forward(w, req, target)
}

func (r *Router) forward(w http.ResponseWriter, req *http.Request, target *url.URL) {
	if r.metrics != nil {
		r.metrics.RequestsRouted.Inc()
	}
	ctx := context.WithValue(req.Context(), targetKey{}, target)
	r.proxy.ServeHTTP(w, req.WithContext(ctx))
}

func (r *Router) reject(w http.ResponseWriter, status int, code, message string) {
	if r.metrics != nil {
		r.metrics.RequestsRejected.Inc()
	}
	writeError(w, status, code, message)
}

// lookupDomain resolves a custom domain through the TTL cache. Store errors,
// including lookup timeouts, read as a miss.
func (r *Router) lookupDomain(ctx context.Context, host string) (*registry.DomainRecord, bool) {
	if cached, ok := r.cache.Get("d:" + host); ok {
		if r.metrics != nil {
			r.metrics.CacheHits.Inc()
		}
		return cached.(*registry.DomainRecord), true
	}

	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()
	start := time.Now()
	record, err := r.domains.Find(ctx, host)
	if r.metrics != nil {
		r.metrics.ObserveLookup(start)
	}
	if err != nil {
		return nil, false
	}
	r.cache.SetDefault("d:"+host, record)
	return record, true
}

func (r *Router) lookupProject(ctx context.Context, sub string) (*registry.Project, bool) {
	if cached, ok := r.cache.Get("s:" + sub); ok {
		if r.metrics != nil {
			r.metrics.CacheHits.Inc()
		}
		return cached.(*registry.Project), true
	}

	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()
	start := time.Now()
	project, err := r.projects.FindBySubdomain(ctx, sub)
	if r.metrics != nil {
		r.metrics.ObserveLookup(start)
	}
	if err != nil {
		return nil, false
	}
	r.cache.SetDefault("s:"+sub, project)
	return project, true
}

func normalizeHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
