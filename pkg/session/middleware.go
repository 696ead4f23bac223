package session

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/orbit-cli/orbit/pkg/apiresponses"
	"github.com/orbit-cli/orbit/pkg/system"
)

const identityKey = "identity"

// Middleware authenticates the request from its cookie or bearer header and
// stores the identity in the gin context under "identity", "user_id",
// "email" and "name". The Authorization header is removed once read.
func (r *Resolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := r.FromRequest(c.Request.Context(), c.Request)
		c.Request.Header.Del("Authorization")
		if err != nil {
			var se *StorageError
			if errors.As(err, &se) {
				apiresponses.RespondInternalError(c, "resolve session", err, system.GetReqLogger(c, r.log))
				c.Abort()
				return
			}
			apiresponses.RespondUnauthorized(c, "")
			return
		}

		c.Set(identityKey, id)
		c.Set("user_id", id.User.ID)
		c.Set("email", id.User.Email)
		c.Set("name", id.User.Name)
		c.Set(system.ReqLoggerKey, system.EnrichReqLoggerWithAuth(c, system.GetReqLogger(c, r.log)))
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Middleware.
func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok && id != nil
}
