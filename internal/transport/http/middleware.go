package httptransport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	platformerrors "paylink-server-go/internal/platform/errors"
	"paylink-server-go/internal/platform/logging"
)

// IdentityKey is the gin context key the auth middleware stores the
// authenticated username under.
const IdentityKey = "username"

// TokenValidator checks an access token and returns the identity it
// carries.
type TokenValidator interface {
	Validate(accessToken string) (string, error)
}

// BearerAuth returns a middleware that requires a valid bearer access
// token. A missing token yields 401; a present but invalid or expired
// token yields 403.
func BearerAuth(validator TokenValidator, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			RespondError(c, http.StatusUnauthorized, "authorization token required", nil)
			c.Abort()
			return
		}

		username, err := validator.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			logger.DebugTag("HTTP", "token rejected for %s: %v", c.Request.URL.Path, err)
			RespondError(c, http.StatusForbidden, "invalid or expired token", nil)
			c.Abort()
			return
		}

		c.Set(IdentityKey, username)
		c.Next()
	}
}

// Identity returns the username the auth middleware stored on the
// context.
func Identity(c *gin.Context) string {
	return c.GetString(IdentityKey)
}

// StatusForError maps the error taxonomy onto HTTP status codes.
func StatusForError(err error) int {
	switch platformerrors.KindOf(err) {
	case platformerrors.KindBadRequest:
		return http.StatusBadRequest
	case platformerrors.KindUnauthenticated:
		return http.StatusUnauthorized
	case platformerrors.KindForbidden:
		return http.StatusForbidden
	case platformerrors.KindNotFound:
		return http.StatusNotFound
	case platformerrors.KindConflict:
		return http.StatusConflict
	case platformerrors.KindTimeout:
		return http.StatusGatewayTimeout
	case platformerrors.KindPayment:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
