package apiresponses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		respond    func(c *gin.Context)
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{
			name:       "not found",
			respond:    func(c *gin.Context) { RespondNotFound(c, "conversation", "c1") },
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
			wantError:  "conversation not found: c1",
		},
		{
			name:       "unauthorized default message",
			respond:    func(c *gin.Context) { RespondUnauthorized(c, "") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
			wantError:  "user not authenticated",
		},
		{
			name:       "unauthorized custom message",
			respond:    func(c *gin.Context) { RespondUnauthorized(c, "Invalid token") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
			wantError:  "Invalid token",
		},
		{
			name:       "bad request",
			respond:    func(c *gin.Context) { RespondBadRequest(c, "mode is required") },
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
			wantError:  "mode is required",
		},
		{
			name:       "conflict",
			respond:    func(c *gin.Context) { RespondConflict(c, "nothing to resume") },
			wantStatus: http.StatusConflict,
			wantCode:   "CONFLICT",
			wantError:  "nothing to resume",
		},
		{
			name:       "bad gateway",
			respond:    func(c *gin.Context) { RespondBadGateway(c, "", "c1") },
			wantStatus: http.StatusBadGateway,
			wantCode:   "BAD_GATEWAY",
			wantError:  "bad gateway",
		},
		{
			name:       "service unavailable",
			respond:    func(c *gin.Context) { RespondServiceUnavailable(c, "database") },
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "SERVICE_UNAVAILABLE",
			wantError:  "service unavailable: database",
		},
		{
			name:       "too many requests",
			respond:    RespondTooManyRequests,
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "RATE_LIMITED",
			wantError:  "Rate limit exceeded, please try again later",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext()
			tt.respond(c)
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantError, body.Error)
		})
	}
}

func TestRespondInternalError_Sanitized(t *testing.T) {
	c, rec := newContext()
	RespondInternalError(c, "list conversations", errors.New("pq: secret detail"), zaptest.NewLogger(t).Sugar())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "failed to list conversations", body.Error)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestSuccessResponses(t *testing.T) {
	c, rec := newContext()
	RespondCreated(c, gin.H{"id": "c1"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"c1"}`, rec.Body.String())

	c, rec = newContext()
	RespondOK(c, gin.H{"ok": true})
	assert.Equal(t, http.StatusOK, rec.Code)

	c, _ = newContext()
	RespondNoContent(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
}
