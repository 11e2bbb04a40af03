package ws

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// panelToken returns the credential a view presented, looking at the query
// string first since browsers cannot set headers on a websocket dial.
func panelToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if t := r.Header.Get("X-Panel-Token"); t != "" {
		return t
	}
	scheme, t, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(t)
	}
	return ""
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(panelToken(r)), []byte(s.authToken)) == 1
}

// originPolicy decides which pages may open a panel. With no configured
// origins, only the host's own pages and loopback pages qualify.
type originPolicy struct {
	origins map[string]bool
	hosts   map[string]bool
}

func newOriginPolicy(allowed []string) originPolicy {
	p := originPolicy{origins: make(map[string]bool), hosts: make(map[string]bool)}
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		p.origins[o] = true
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			p.hosts[u.Host] = true
		}
	}
	return p
}

// allows reports whether a page at origin may connect to a server reached
// as requestHost. Requests without an Origin are not from a browser.
func (p originPolicy) allows(origin, requestHost string) bool {
	if origin == "" || p.origins[origin] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if len(p.origins) > 0 {
		return p.hosts[u.Host]
	}
	return u.Host == requestHost || isLoopback(u.Hostname())
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	return s.origins.allows(r.Header.Get("Origin"), r.Host)
}
