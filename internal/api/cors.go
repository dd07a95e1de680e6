package api

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns middleware that lets any origin call the gateway and answers
// preflight requests with 204 No Content.
func CORS() func(next http.Handler) http.Handler {
	allow := cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"*"},
		ExposedHeaders:     []string{"Content-Length", "Content-Range", "Retry-After"},
		OptionsPassthrough: true,
		MaxAge:             300,
	})
	return func(next http.Handler) http.Handler {
		return allow(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
