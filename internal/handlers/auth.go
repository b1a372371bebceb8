package handlers

import (
	"log/slog"
	"net/http"

	"tuckbot-api/internal/config"
	"tuckbot-api/internal/logging"
	"tuckbot-api/internal/utils"

	"github.com/gin-gonic/gin"
)

// TokenHeader carries the shared API secret on every request.
const TokenHeader = "X-Tuckbot-Api-Token"

// TokenAuth rejects requests whose TokenHeader is missing (422) or does not
// match the configured token (401). A bcrypt TokenHash takes precedence over
// a plaintext Token when both are set.
func TokenAuth(cfg config.APIConfig, logger *slog.Logger) gin.HandlerFunc {
	matches := func(given string) bool {
		if cfg.TokenHash != "" {
			return utils.CheckTokenHash(given, cfg.TokenHash)
		}
		return cfg.Token != "" && utils.TokensEqual(given, cfg.Token)
	}

	return func(c *gin.Context) {
		log := logging.FromContext(c.Request.Context(), logger)
		given := c.GetHeader(TokenHeader)

		if given == "" {
			log.Error("authentication attempted without authentication tokens", "path", c.Request.URL.Path)
			abortWith(c, Response{
				Status:  http.StatusUnprocessableEntity,
				Message: "Auth parameters not provided",
			})
			return
		}

		if !matches(given) {
			log.Error("authentication failed", "path", c.Request.URL.Path)
			abortWith(c, Response{
				Status:  http.StatusUnauthorized,
				Message: "Invalid credentials",
			})
			return
		}

		log.Debug("received valid api authentication")
		c.Next()
	}
}
