package middleware

import (
	"net/http"

	"filippo.io/csrf"
	"github.com/rs/cors"
)

// CORS wraps h so the browser frontend on allowedOrigins may call the API with
// the session cookie.
func CORS(allowedOrigins []string, h http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler(h)
}

// CSRF rejects cross-origin state-changing browser requests, except from
// trustedOrigins. Requests without browser fetch metadata, such as Bearer API
// clients, pass through.
func CSRF(trustedOrigins []string, h http.Handler) (http.Handler, error) {
	protection := csrf.New()
	for _, o := range trustedOrigins {
		if o == "*" {
			continue
		}
		if err := protection.AddTrustedOrigin(o); err != nil {
			return nil, err
		}
	}
	return protection.Handler(h), nil
}
