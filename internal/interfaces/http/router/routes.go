package router

import (
	"github.com/gin-gonic/gin"
	"github.com/lunari/studio-ledger/internal/interfaces/http/handler"
)

// StreamPath is the SSE route relative to the API base path
const StreamPath = "/sessions/stream"

// SessionRoutes builds the session ledger group. The stream route is
// declared before /:id so gin matches it literally.
func SessionRoutes(sessions *handler.SessionHandler, stream *handler.SessionStreamHandler) *DomainGroup {
	g := NewDomainGroup("sessions", "/sessions")
	g.GET("", sessions.List)
	g.POST("", sessions.Create)
	if stream != nil {
		g.GET("/stream", stream.Stream)
	}
	g.GET("/:id", sessions.Get)
	g.PATCH("/:id", sessions.Update)
	g.DELETE("/:id", sessions.Delete)
	g.GET("/:id/display", sessions.Display)
	g.GET("/:id/payments", sessions.Payments)
	g.POST("/:id/reconcile", sessions.Reconcile)
	g.POST("/:id/archive", sessions.Archive)
	return g
}

// SystemRoutes builds the versioned system group
func SystemRoutes(system *handler.SystemHandler) *DomainGroup {
	g := NewDomainGroup("system", "/system")
	g.GET("/info", system.GetSystemInfo)
	g.GET("/ping", system.Ping)
	return g
}

// MountHealth registers the unversioned health probe used by orchestrators
func MountHealth(engine *gin.Engine, system *handler.SystemHandler) {
	engine.GET("/health", system.Health)
}
