package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// AllowList admits requests whose remote address falls inside one of the
// configured CIDR ranges.
type AllowList struct {
	prefixes []netip.Prefix
}

func NewAllowList(cidrs []string) (*AllowList, error) {
	al := &AllowList{}
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		al.prefixes = append(al.prefixes, prefix.Masked())
	}
	return al, nil
}

// Allowed reports whether ip is inside the list. An empty list allows
// everything.
func (al *AllowList) Allowed(ip string) bool {
	if len(al.prefixes) == 0 {
		return true
	}
	addr, ok := parseRemote(ip)
	if !ok {
		return false
	}
	for _, prefix := range al.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (al *AllowList) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !al.Allowed(r.RemoteAddr) {
				logger.Warn("rejected request from address outside allow-list", "remote", r.RemoteAddr, "path", r.URL.Path)
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseRemote accepts both "host:port" (net/http) and a bare address
// (after the RealIP middleware rewrote RemoteAddr).
func parseRemote(remote string) (netip.Addr, bool) {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
