package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"os"
	"strings"
)

const (
	InternalSecretHeader = "X-Internal-Secret"
	internalSecretEnv    = "INTERNAL_SECRET"
)

// InternalSecret возвращает общий секрет межсервисных вызовов (пустой: не задан).
func InternalSecret() string {
	return strings.TrimSpace(os.Getenv(internalSecretEnv))
}

// InternalOnly пропускает межсервисные вызовы. При заданном INTERNAL_SECRET нужен
// совпадающий X-Internal-Secret, адрес не важен. Без секрета: только loopback/приватный
// адрес самого TCP-соединения; X-Real-Ip и X-Forwarded-For не учитываются.
func InternalOnly(next http.Handler) http.Handler {
	secret := InternalSecret()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret != "" {
			got := r.Header.Get(InternalSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if isPrivateIP(remoteHost(r)) {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// clientIP используется только для лимитов: X-Real-Ip, затем первый адрес X-Forwarded-For, затем RemoteAddr.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			xff = xff[:idx]
		}
		return strings.TrimSpace(xff)
	}
	return remoteHost(r)
}

func isPrivateIP(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}
