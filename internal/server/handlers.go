package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/lexiz/internal/wire"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleEvaluate validates the whole batch before writing anything, then
// streams frames until every item has ended or the client goes away.
func (s *Server) handleEvaluate(c *gin.Context) {
	if s.cfg.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
	}

	var batch wire.BatchRequest
	dec := json.NewDecoder(c.Request.Body)
	if err := dec.Decode(&batch); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := batch.Validate(s.gateway.Config().MaxBatch); err != nil {
		badRequest(c, err.Error())
		return
	}

	c.Header("Content-Type", wire.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	ctx := c.Request.Context()
	enc := wire.NewEncoder(c.Writer)
	err := s.gateway.Stream(ctx, batch.Items, enc)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		s.logger.Info("client disconnected", "request_id", c.GetString(requestIDKey), "frames", enc.Frames())
	default:
		s.logger.Warn("stream ended early", "error", err, "request_id", c.GetString(requestIDKey), "frames", enc.Frames())
	}
}

func (s *Server) handleCircuitStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.protection.Snapshot().Status())
}

func (s *Server) handleCircuitReset(c *gin.Context) {
	s.protection.Reset()
	s.logger.Info("circuit reset by operator", "request_id", c.GetString(requestIDKey))
	c.JSON(http.StatusOK, s.protection.Snapshot().Status())
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
