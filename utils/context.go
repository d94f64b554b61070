package utils

import (
	"context"
	"net"
	"net/http"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"deadstock/config"
)

type contextKey string

const authKey contextKey = "auth"

// AuthInfo is the authenticated caller attached to the request context.
type AuthInfo struct {
	UserID primitive.ObjectID
	Name   string
	Email  string
	Role   string
}

func WithAuth(ctx context.Context, info AuthInfo) context.Context {
	return context.WithValue(ctx, authKey, info)
}

func AuthFromContext(ctx context.Context) (AuthInfo, bool) {
	info, ok := ctx.Value(authKey).(AuthInfo)
	return info, ok && !info.UserID.IsZero()
}

// MustAuth returns the caller or writes a 401 and reports false.
func MustAuth(w http.ResponseWriter, r *http.Request) (AuthInfo, bool) {
	info, ok := AuthFromContext(r.Context())
	if !ok {
		RespondWithError(w, http.StatusUnauthorized, "authentication required")
	}
	return info, ok
}

// ClientIP is the RemoteAddr host unless the peer is a trusted proxy, in which
// case X-Forwarded-For is walked right to left to the first untrusted hop.
func ClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !trustedProxy(peer) {
		return peer
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !trustedProxy(hop) || i == 0 {
				return hop
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}

func trustedProxy(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range config.TrustedProxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
