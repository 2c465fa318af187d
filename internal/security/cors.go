package security

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS allows browser calls from the listed origins. A "*" entry allows any
// origin and disables credentials.
func CORS(originsCSV string) func(http.Handler) http.Handler {
	var origins []string
	credentials := true
	for _, origin := range strings.Split(originsCSV, ",") {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
			continue
		case "*":
			credentials = false
		}
		origins = append(origins, origin)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			"X-Request-ID", "Idempotency-Key", "X-Organization-ID",
		},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: credentials,
		MaxAge:           300,
	})
}
