package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/orbit-cli/orbit/pkg/apiresponses"
	"github.com/orbit-cli/orbit/pkg/ratelimit"
	"github.com/orbit-cli/orbit/pkg/session"
	"github.com/orbit-cli/orbit/pkg/system"
)

// SessionResolver is implemented by *session.Resolver.
type SessionResolver interface {
	FromRequest(ctx context.Context, req *http.Request) (*session.Identity, error)
	FromBearer(ctx context.Context, token string) (*session.Identity, error)
}

// MeController reports who the caller is. It is the endpoint the CLI uses to
// check a stored credential.
type MeController struct {
	log      *zap.SugaredLogger
	resolver SessionResolver
	limiter  *ratelimit.Limiter
}

func NewMeController(log *zap.SugaredLogger, resolver SessionResolver, limiter *ratelimit.Limiter) *MeController {
	return &MeController{log: log, resolver: resolver, limiter: limiter}
}

func (MeController) BasePath() string {
	return "me"
}

func (mc *MeController) Register(rg *gin.RouterGroup) error {
	rg.GET("", mc.handleMe)
	var tokenHandlers []gin.HandlerFunc
	if mc.limiter != nil {
		// the path token is caller controlled, so lookups are throttled per IP
		tokenHandlers = append(tokenHandlers, mc.limiter.PerIP("me_token"))
	}
	tokenHandlers = append(tokenHandlers, mc.handleMeByToken)
	rg.GET("/:access_token", tokenHandlers...)
	return nil
}

func (mc *MeController) Handlers() []gin.HandlerFunc {
	return nil
}

func (mc *MeController) handleMe(c *gin.Context) {
	id, err := mc.resolver.FromRequest(c.Request.Context(), c.Request)
	mc.respond(c, id, err, "No active session")
}

func (mc *MeController) handleMeByToken(c *gin.Context) {
	id, err := mc.resolver.FromBearer(c.Request.Context(), c.Param("access_token"))
	mc.respond(c, id, err, "Invalid token")
}

func (mc *MeController) respond(c *gin.Context, id *session.Identity, err error, unauthenticated string) {
	if err != nil {
		if errors.Is(err, session.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": unauthenticated})
			return
		}
		apiresponses.RespondInternalError(c, "resolve session", err, system.GetReqLogger(c, mc.log))
		return
	}
	c.JSON(http.StatusOK, id)
}
