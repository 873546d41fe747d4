package ipc

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// allowedOrigin is one parsed entry of the configured origin list.
type allowedOrigin struct {
	scheme string
	host   string
	port   string // empty: default port, or any port for loopback hosts
}

// originPolicy decides which browser origins may drive the panel.
type originPolicy struct {
	any     bool
	entries []allowedOrigin
}

func newOriginPolicy(origins []string) originPolicy {
	var p originPolicy
	for _, raw := range origins {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if raw == "*" {
			p.any = true
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		host, port := splitHostPortLoose(u.Host)
		p.entries = append(p.entries, allowedOrigin{
			scheme: strings.ToLower(u.Scheme),
			host:   strings.ToLower(host),
			port:   port,
		})
	}
	return p
}

// allows reports whether origin is permitted and whether it matched only
// through the "*" entry.
func (p originPolicy) allows(origin string) (allowed, wildcard bool) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false, false
	}
	scheme := strings.ToLower(u.Scheme)
	host, port := splitHostPortLoose(u.Host)
	host = strings.ToLower(host)
	if port == "" {
		port = defaultPortForScheme(scheme)
	}

	for _, e := range p.entries {
		if e.scheme == scheme && e.host == host && e.portMatches(port, scheme) {
			return true, false
		}
	}
	return p.any, p.any
}

func (e allowedOrigin) portMatches(port, scheme string) bool {
	if e.port != "" {
		return e.port == port
	}
	if isLoopbackHost(e.host) {
		return true
	}
	return port == defaultPortForScheme(scheme)
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func splitHostPortLoose(hostport string) (host, port string) {
	if h, p, err := net.SplitHostPort(hostport); err == nil {
		return h, p
	}
	return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]"), ""
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "https", "wss":
		return "443"
	default:
		return "80"
	}
}

// corsMiddleware echoes permitted origins and answers preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			if allowed, wildcard := s.origins.allows(origin); allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if !wildcard {
					w.Header().Add("Vary", "Origin")
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// originGuard rejects state-changing requests from foreign browser origins.
func (s *Server) originGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isRequestOriginAllowed(r) {
			respondError(w, http.StatusForbidden, errForbiddenOrigin)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isRequestOriginAllowed accepts requests without an Origin header, which
// come from controllers rather than browsers, and same-host origins.
func (s *Server) isRequestOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	allowed, _ := s.origins.allows(origin)
	return allowed
}
