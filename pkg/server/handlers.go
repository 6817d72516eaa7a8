package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/entrhq/hammer/pkg/dispatch"
)

// handleAction runs one dispatch request.
func (s *Server) handleAction(c *gin.Context) {
	var req dispatch.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "❌ Invalid request body: " + err.Error()})
		return
	}
	if req.Action == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "❌ action is required"})
		return
	}

	result, err := s.manager.Dispatcher().Dispatch(c.Request.Context(), &req)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{
			Action: req.Action,
			Detail: detailFor(&req, err),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Health())
}

func (s *Server) handleSessions(c *gin.Context) {
	sessions := s.manager.Registry().List()
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// docsPage is the data rendered into index.html.
type docsPage struct {
	Version        string
	Driver         string
	ActiveSessions int
	BrowserRunning bool
	Actions        []dispatch.ActionInfo
}

func (s *Server) handleIndex(c *gin.Context) {
	health := s.manager.Health()
	c.HTML(http.StatusOK, "index.html", docsPage{
		Version:        s.version,
		Driver:         health.Driver,
		ActiveSessions: health.ActiveSessions,
		BrowserRunning: health.BrowserRunning,
		Actions:        s.manager.Dispatcher().Actions(),
	})
}
