package middleware

import (
	"net/http"
	"strings"
)

// VHostRewrite rewrites virtual-hosted-style object requests
// (`<bucket>.<baseHost>`) into path-style (`/<bucket>/...`) before handing
// off to the object service's path-style router. Requests whose Host does
// not match one of the configured base hosts pass through unchanged.
func VHostRewrite(baseHosts []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := stripPort(r.Host)
			for _, base := range baseHosts {
				suffix := "." + base
				if strings.HasSuffix(host, suffix) {
					bucket := strings.TrimSuffix(host, suffix)
					if bucket != "" {
						r.URL.Path = "/" + bucket + r.URL.Path
					}
					break
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func stripPort(host string) string {
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		return host[:idx]
	}
	return host
}
