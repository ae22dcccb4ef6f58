package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rebolloluis/family-tree/pkg/logger"
)

// CORS returns a CORS middleware for the tree UI. With no usable origins
// every origin is allowed.
func CORS(origins ...string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(origins),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", logger.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// allowedOrigins drops entries cors.New would panic on.
func allowedOrigins(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case o == "*":
			return []string{"*"}
		case strings.HasPrefix(o, "http://"), strings.HasPrefix(o, "https://"):
			out = append(out, o)
		default:
			logger.Warn().Str("origin", o).Msg("ignoring CORS origin without http(s) scheme")
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
