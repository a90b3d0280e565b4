package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
)

const forwardedForHeader = "X-Forwarded-For"

// KeyFunc extrai a identidade do cliente da requisição.
type KeyFunc func(r *http.Request) domain.ClientKey

// ClientKeyFunc retorna a extração padrão: header do proxy confiável, primeiro
// IP do X-Forwarded-For, host do RemoteAddr e, por fim, o sentinel de loopback.
// Com trustProxyHeaders=false apenas o RemoteAddr é considerado.
//
// Valores que não são IPs válidos são ignorados e a próxima fonte é usada.
// Endereços de loopback (127.0.0.0/8, ::1) viram domain.LoopbackKey.
func ClientKeyFunc(trustedHeader string, trustProxyHeaders bool) KeyFunc {
	trustedHeader = strings.TrimSpace(trustedHeader)

	return func(r *http.Request) domain.ClientKey {
		if trustProxyHeaders {
			if trustedHeader != "" {
				if ip := normalizeIP(r.Header.Get(trustedHeader)); ip != "" {
					return ip
				}
			}

			if xff := r.Header.Get(forwardedForHeader); xff != "" {
				first := xff
				if idx := strings.IndexByte(xff, ','); idx >= 0 {
					first = xff[:idx]
				}
				if ip := normalizeIP(first); ip != "" {
					return ip
				}
			}
		}

		if ip := normalizeIP(r.RemoteAddr); ip != "" {
			return ip
		}
		return domain.LoopbackKey
	}
}

func normalizeIP(raw string) domain.ClientKey {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(v); err == nil {
		v = host
	}
	v = strings.TrimSuffix(strings.TrimPrefix(v, "["), "]")
	if idx := strings.IndexByte(v, '%'); idx >= 0 {
		v = v[:idx]
	}

	addr, err := netip.ParseAddr(v)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	if addr.IsLoopback() {
		return domain.LoopbackKey
	}
	return domain.ClientKey(addr.String())
}
