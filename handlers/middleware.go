package handlers

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-checkout/guard"
	"storefront-checkout/logging"
)

// RequireSecureTransport rejects requests that did not arrive over TLS.
// X-Forwarded-Proto is honoured only when the direct peer is one of
// trustedProxies (CIDRs or bare IPs). Plain HTTP is let through for a local
// development host only when the peer itself is on loopback.
func RequireSecureTransport(trustedProxies []string) (gin.HandlerFunc, error) {
	proxies, err := parseCIDRs(trustedProxies)
	if err != nil {
		return nil, err
	}
	return func(c *gin.Context) {
		peer := net.ParseIP(c.RemoteIP())
		if guard.CheckSecureContext(requestOrigin(c.Request, peer, proxies)) {
			c.Next()
			return
		}
		logging.FromContext(c.Request.Context()).Warn("Rejected insecure request",
			zap.String("host", c.Request.Host),
			zap.String("path", c.Request.URL.Path),
			zap.String("remote_ip", c.RemoteIP()),
		)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Payments require a secure (HTTPS) connection"})
	}, nil
}

func requestOrigin(r *http.Request, peer net.IP, proxies []*net.IPNet) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" && contains(proxies, peer) {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	host := r.Host
	if scheme == "http" && (peer == nil || !peer.IsLoopback()) {
		// The Host header is client supplied; a remote peer claiming
		// localhost is still plain HTTP from the outside.
		host = ""
	}
	return &url.URL{Scheme: scheme, Host: host}
}

func parseCIDRs(values []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !strings.Contains(v, "/") {
			ip := net.ParseIP(v)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", v)
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			v = fmt.Sprintf("%s/%d", v, bits)
		}
		_, n, err := net.ParseCIDR(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func contains(nets []*net.IPNet, ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
