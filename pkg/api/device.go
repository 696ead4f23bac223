package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// handleDeviceRedirect forwards the verification link printed by the CLI to
// the frontend's approval page. It never changes state.
func (s *Server) handleDeviceRedirect(c *gin.Context) {
	base := strings.TrimRight(s.config.Frontend.BaseURL, "/")
	target := base + "/device"
	if code := strings.TrimSpace(c.Query("user_code")); code != "" {
		target += "?user_code=" + url.QueryEscape(code)
	}
	c.Redirect(http.StatusFound, target)
}
