package api

import (
	"crypto/subtle"
	"net/http"
)

// basicAuth guards the debug surface with one fixed credential pair.
func basicAuth(user, pass string) func(http.Handler) http.Handler {
	wantUser := []byte(user)
	wantPass := []byte(pass)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			userOK := subtle.ConstantTimeCompare([]byte(u), wantUser) == 1
			passOK := subtle.ConstantTimeCompare([]byte(p), wantPass) == 1
			if !ok || !userOK || !passOK {
				w.Header().Set("WWW-Authenticate", `Basic realm="moomoo2-debug"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
