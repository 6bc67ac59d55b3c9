package middleware

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"net/netip"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
)

// MountPprof exposes /debug/pprof on r for callers inside allowedCIDRs.
func MountPprof(r chi.Router, allowedCIDRs []string, l *slog.Logger) {
	r.Route("/debug/pprof", func(r chi.Router) {
		r.Use(IPAllowlist(allowedCIDRs, l))
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		r.Handle("/{profile}", http.HandlerFunc(pprof.Index))
	})
}

// IPAllowlist rejects requests whose remote address is outside prefixes.
// Unparseable prefixes are logged and ignored.
func IPAllowlist(prefixes []string, l *slog.Logger) func(http.Handler) http.Handler {
	var allowed []netip.Prefix
	for _, s := range prefixes {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			l.Warn("invalid allowlist prefix, skipping", slog.String("prefix", s), slog.String("error", err.Error()))
			continue
		}
		allowed = append(allowed, p)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, err := netip.ParseAddrPort(r.RemoteAddr)
			var ip netip.Addr
			if err == nil {
				ip = addr.Addr().Unmap()
			} else if a, perr := netip.ParseAddr(r.RemoteAddr); perr == nil {
				ip = a.Unmap()
			}

			for _, p := range allowed {
				if ip.IsValid() && p.Contains(ip) {
					next.ServeHTTP(w, r)
					return
				}
			}
			l.Warn("access denied by IP allowlist", slog.String("remote_addr", r.RemoteAddr), slog.String("path", r.URL.Path))
			httputil.WriteError(w, r, apperrors.Forbidden("access restricted by IP allowlist"), l)
		})
	}
}
