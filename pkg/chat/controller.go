package chat

import (
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/orbit-cli/orbit/pkg/apiresponses"
	"github.com/orbit-cli/orbit/pkg/conversation"
	"github.com/orbit-cli/orbit/pkg/ratelimit"
	"github.com/orbit-cli/orbit/pkg/system"
)

type ConversationController struct {
	log          *zap.SugaredLogger
	orchestrator *Orchestrator
	middleware   gin.HandlerFunc
	limiter      *ratelimit.Limiter
}

func NewConversationController(log *zap.SugaredLogger, orchestrator *Orchestrator,
	middleware gin.HandlerFunc, limiter *ratelimit.Limiter,
) *ConversationController {
	return &ConversationController{
		log:          log,
		orchestrator: orchestrator,
		middleware:   middleware,
		limiter:      limiter,
	}
}

func (ConversationController) BasePath() string {
	return "conversations"
}

func (cc *ConversationController) Register(rg *gin.RouterGroup) error {
	rg.GET("", cc.handleList)
	rg.POST("", cc.handleCreate)
	rg.POST("/messages", cc.handleSend)
	rg.GET("/:id", cc.handleGet)
	rg.PATCH("/:id", cc.handleRename)
	rg.DELETE("/:id", cc.handleDelete)
	rg.POST("/:id/resume", cc.handleResume)
	return nil
}

// Handlers authenticates first so the limiter can key on the user.
func (cc *ConversationController) Handlers() []gin.HandlerFunc {
	handlers := []gin.HandlerFunc{cc.middleware}
	if cc.limiter != nil {
		handlers = append(handlers, cc.limiter.PerUser("conversations", "user_id"))
	}
	return handlers
}

type createRequest struct {
	Mode  string `json:"mode"`
	Title string `json:"title,omitempty"`
}

type sendRequest struct {
	ConversationID string               `json:"conversationId,omitempty"`
	Mode           string               `json:"mode"`
	Content        conversation.Content `json:"content"`
}

type renameRequest struct {
	Title string `json:"title"`
}

func (cc *ConversationController) handleList(c *gin.Context) {
	convs, err := cc.orchestrator.List(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		cc.respondError(c, "list conversations", err)
		return
	}
	apiresponses.RespondOK(c, convs)
}

func (cc *ConversationController) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequest(c, "invalid request body")
		return
	}
	mode, err := conversation.ParseMode(req.Mode)
	if err != nil {
		apiresponses.RespondBadRequest(c, err.Error())
		return
	}
	conv, err := cc.orchestrator.Create(c.Request.Context(), c.GetString("user_id"), mode, req.Title)
	if err != nil {
		cc.respondError(c, "create conversation", err)
		return
	}
	apiresponses.RespondCreated(c, conv)
}

func (cc *ConversationController) handleGet(c *gin.Context) {
	id := c.Param("id")
	thread, err := cc.orchestrator.Get(c.Request.Context(), c.GetString("user_id"), id)
	if err != nil {
		cc.respondError(c, "load conversation", err)
		return
	}
	apiresponses.RespondOK(c, thread)
}

func (cc *ConversationController) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequest(c, "invalid request body")
		return
	}
	mode, err := conversation.ParseMode(req.Mode)
	if err != nil {
		apiresponses.RespondBadRequest(c, err.Error())
		return
	}
	ex, err := cc.orchestrator.Send(c.Request.Context(), c.GetString("user_id"), req.ConversationID, mode, req.Content)
	if err != nil {
		cc.respondExchangeError(c, "send message", ex, err)
		return
	}
	apiresponses.RespondOK(c, ex)
}

func (cc *ConversationController) handleResume(c *gin.Context) {
	ex, err := cc.orchestrator.Resume(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	if err != nil {
		cc.respondExchangeError(c, "resume conversation", ex, err)
		return
	}
	apiresponses.RespondOK(c, ex)
}

func (cc *ConversationController) handleRename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequest(c, "invalid request body")
		return
	}
	conv, err := cc.orchestrator.Rename(c.Request.Context(), c.GetString("user_id"), c.Param("id"), req.Title)
	if err != nil {
		cc.respondError(c, "rename conversation", err)
		return
	}
	apiresponses.RespondOK(c, conv)
}

func (cc *ConversationController) handleDelete(c *gin.Context) {
	if err := cc.orchestrator.Delete(c.Request.Context(), c.GetString("user_id"), c.Param("id")); err != nil {
		cc.respondError(c, "delete conversation", err)
		return
	}
	apiresponses.RespondNoContent(c)
}

// respondExchangeError reports a failed completion as 502 and hands back the
// conversation id so the client can resume it.
func (cc *ConversationController) respondExchangeError(c *gin.Context, op string, ex *Exchange, err error) {
	if errors.Is(err, ErrCompletionFailed) {
		details := ""
		if ex != nil {
			details = ex.Conversation.ID
		}
		system.GetReqLogger(c, cc.log).Warnw("Completion backend failed", "conversation", details, "error", err)
		apiresponses.RespondBadGateway(c, "completion backend failed, your message was saved", details)
		return
	}
	cc.respondError(c, op, err)
}

func (cc *ConversationController) respondError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		apiresponses.RespondNotFound(c, "conversation", c.Param("id"))
	case errors.Is(err, conversation.ErrInvalidMode),
		errors.Is(err, conversation.ErrInvalidRole),
		errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrEmptyTitle):
		apiresponses.RespondBadRequest(c, err.Error())
	case errors.Is(err, ErrNothingToResume):
		apiresponses.RespondConflict(c, err.Error())
	default:
		apiresponses.RespondInternalError(c, op, err, system.GetReqLogger(c, cc.log))
	}
}
