package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getStatus reports the engine's current state for the status() verb.
func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Status())
}

// startHedging enables new hedge opens and brings up the background loops.
func (s *Server) startHedging(c *gin.Context) {
	if err := s.Engine.StartHedging(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.Engine.Status())
}

// stopHedging disables new hedge opens; existing hedges keep being monitored.
func (s *Server) stopHedging(c *gin.Context) {
	if err := s.Engine.StopHedging(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.Engine.Status())
}

// emergencyShutdown disables opens and unwinds every open position.
func (s *Server) emergencyShutdown(c *gin.Context) {
	if err := s.Engine.EmergencyShutdown(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.Engine.Status())
}
