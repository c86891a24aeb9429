package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures configuration for the control-plane API binary.
type Server struct {
	Addr        string
	DatabaseURL string

	// PlatformRootDomain is the zone platform subdomains live under.
	PlatformRootDomain string
	// CNAMETarget is the routing endpoint customers point their domains at.
	CNAMETarget string

	CloudFront CloudFrontConfig
	DNS        DNSConfig
}

// Edge captures configuration for the edge router binary. The edge runs in
// its own process and shares nothing with the API beyond the registry.
type Edge struct {
	Addr string
	// AdminAddr serves /healthz and /metrics on a separate listener so
	// operational paths never shadow customer application paths.
	AdminAddr   string
	DatabaseURL string
	Redis       RedisConfig

	PlatformRootDomain string

	// RequestTimeout bounds the whole proxied request.
	RequestTimeout time.Duration
	// LookupTimeout bounds registry reads and must stay well under
	// RequestTimeout; the store sits on every request's critical path.
	LookupTimeout time.Duration
	// CacheTTL controls the in-process lookup cache. Activation and removal
	// take effect at the edge within this window.
	CacheTTL time.Duration

	// ExternalProxies maps platform subdomains to fixed external hosts that
	// are proxied without a registry lookup (hosted blog, status page).
	ExternalProxies map[string]string
}

// CloudFrontConfig identifies the multi-tenant distribution tenants are
// created under. The region is pinned to us-east-1, which CloudFront and ACM
// require for distribution-level resources.
type CloudFrontConfig struct {
	DistributionID  string
	RoutingEndpoint string
	Region          string
}

// DNSConfig selects the upstream resolver for domain verification.
// An empty Upstream falls back to the system resolver configuration.
type DNSConfig struct {
	Upstream string
	Timeout  time.Duration
}

// RedisConfig mirrors the knobs we expose for the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ServerFromEnv builds the API config from environment variables so main
// stays lean.
func ServerFromEnv() Server {
	return Server{
		Addr:               envOr("RELAYPAD_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		PlatformRootDomain: envOr("RELAYPAD_ROOT_DOMAIN", "relaypad.com"),
		CNAMETarget:        envOr("RELAYPAD_CNAME_TARGET", "edge.relaypad.net"),
		CloudFront: CloudFrontConfig{
			DistributionID:  os.Getenv("CLOUDFRONT_MULTITENANT_DISTRIBUTION_ID"),
			RoutingEndpoint: envOr("CLOUDFRONT_ROUTING_ENDPOINT", "edge.relaypad.net"),
			Region:          envOr("CLOUDFRONT_REGION", "us-east-1"),
		},
		DNS: DNSConfig{
			Upstream: os.Getenv("RELAYPAD_DNS_UPSTREAM"),
			Timeout:  envDurationOr("RELAYPAD_DNS_TIMEOUT", 5*time.Second),
		},
	}
}

// EdgeFromEnv builds the edge router config from environment variables.
func EdgeFromEnv() Edge {
	return Edge{
		Addr:               envOr("RELAYPAD_EDGE_ADDR", ":8081"),
		AdminAddr:          envOr("RELAYPAD_EDGE_ADMIN_ADDR", ":9091"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Redis:              redisFromEnv(),
		PlatformRootDomain: envOr("RELAYPAD_ROOT_DOMAIN", "relaypad.com"),
		RequestTimeout:     envDurationOr("RELAYPAD_EDGE_REQUEST_TIMEOUT", 5*time.Second),
		LookupTimeout:      envDurationOr("RELAYPAD_EDGE_LOOKUP_TIMEOUT", 2*time.Second),
		CacheTTL:           envDurationOr("RELAYPAD_EDGE_CACHE_TTL", 5*time.Second),
		ExternalProxies:    envMap("RELAYPAD_EDGE_EXTERNAL_PROXIES"),
	}
}

// envMap parses "key=value,key2=value2" pairs.
func envMap(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		if k, v, ok := strings.Cut(strings.TrimSpace(pair), "="); ok && k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
		MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout: envDurationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
		// The edge reads through this cache on every request; keep the
		// round-trip budget well under the lookup timeout.
		ReadTimeout:  envDurationOr("REDIS_READ_TIMEOUT", 500*time.Millisecond),
		WriteTimeout: envDurationOr("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
