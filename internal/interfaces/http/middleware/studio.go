package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/infrastructure/logger"
	"github.com/lunari/studio-ledger/internal/interfaces/http/dto"
)

// Studio context keys
const (
	StudioIDKey  = "studio_id"
	StudioHeader = "X-Studio-ID"
)

// ErrCodeStudioRequired is returned when no studio can be determined
const ErrCodeStudioRequired = "ERR_STUDIO_REQUIRED"

// StudioConfig configures studio resolution
type StudioConfig struct {
	// Default is used when the header is absent. uuid.Nil makes the header mandatory.
	Default uuid.UUID
	// SkipPaths don't need a studio (health checks)
	SkipPaths []string
}

// Studio resolves the owning studio of a request from the X-Studio-ID
// header, falling back to the configured default
func Studio(cfg StudioConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip || strings.HasPrefix(path, skip+"/") {
				c.Next()
				return
			}
		}

		studioID := cfg.Default
		if raw := strings.TrimSpace(c.GetHeader(StudioHeader)); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
					dto.ErrCodeInvalidInput, "Invalid studio ID format", GetRequestID(c)))
				return
			}
			studioID = parsed
		}
		if studioID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				ErrCodeStudioRequired, "Studio identification required", GetRequestID(c)))
			return
		}

		c.Set(StudioIDKey, studioID)
		ctx, reqLogger := logger.WithStudioID(c.Request.Context(), logger.GetGinLogger(c), studioID.String())
		c.Set("logger", reqLogger)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetStudioID returns the studio resolved by Studio, or uuid.Nil
func GetStudioID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(StudioIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
