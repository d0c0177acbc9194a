package middleware

import (
	"net/http"
	"strings"

	"github.com/wolfman30/heydoc-scheduler/internal/session"
)

// SessionToken adopts a bearer token presented by the presentation layer as
// the session's access token. Requests without one leave the session as is.
// When the token belongs to a different viewer, onChange runs before the
// request is served so no state fetched for the previous viewer leaks.
func SessionToken(sess *session.Session, onChange func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if sess != nil && strings.HasPrefix(auth, "Bearer ") {
				token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
				if token != "" {
					if sess.SetToken(token, session.ViewerFromToken(token)) && onChange != nil {
						onChange()
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
