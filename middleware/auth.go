package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ezmad-Ze/chat-app/service/auth"
	errs "github.com/Ezmad-Ze/chat-app/tools/errs"
)

// CtxIdentityKey is where downstream handlers read the caller identity.
const CtxIdentityKey = "identity"

// Auth guards REST routes with the same resolver the websocket handshake
// uses: bearer credential in the Authorization header, 401 on failure.
func Auth(resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := resolver.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			ce, ok := errs.Code(err)
			if !ok {
				ce = errs.ErrAuthInvalid
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": ce.Code, "message": ce.Msg})
			return
		}
		c.Set(CtxIdentityKey, identity)
		c.Next()
	}
}

// IdentityFrom reads the identity set by Auth.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(CtxIdentityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}
