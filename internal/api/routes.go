// Package api implements the admin HTTP surface (SPEC_FULL.md "Admin API
// surface"): job queue CRUD, rule CRUD, and a live job-progress WebSocket,
// grounded on the teacher's transcodingmodule/api routes.go grouping
// convention.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tidecast/mediapipe/internal/events"
	"github.com/tidecast/mediapipe/internal/queue"
	"github.com/tidecast/mediapipe/internal/rules"
)

// RegisterRoutes wires job/rule admin handlers and the job-events WebSocket
// under router. bus may be nil, in which case /api/jobs/ws is not
// registered (there is nothing to subscribe to).
func RegisterRoutes(router gin.IRouter, jobStore *queue.Store, ruleStore *rules.Store, bus *events.Bus) {
	jobs := NewJobHandlers(jobStore)
	ruleHandlers := NewRuleHandlers(ruleStore)

	api := router.Group("/api")
	{
		api.POST("/jobs", jobs.CreateJob)
		api.GET("/jobs", jobs.ListJobs)
		api.GET("/jobs/dead-letters", jobs.ListDeadLetters)
		api.GET("/jobs/:id", jobs.GetJob)
		api.POST("/jobs/:id/retry", jobs.RetryJob)

		api.GET("/rules", ruleHandlers.ListRules)
		api.POST("/rules", ruleHandlers.CreateRule)
		api.GET("/rules/:id", ruleHandlers.GetRule)
		api.PUT("/rules/:id", ruleHandlers.UpdateRule)

		if bus != nil {
			events := NewJobEventsHandler(bus)
			api.GET("/jobs/ws", events.HandleWebSocket)
		}
	}
}
