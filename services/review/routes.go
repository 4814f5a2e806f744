// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package review

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the review API onto a router group.
//
// Endpoints:
//
//	POST /index                 Index one commit of a repository
//	GET  /index/stats           Current snapshot totals for a repository
//	POST /run                   Execute one review run synchronously
//	GET  /runs/:id              Fetch a stored run by ID
//	GET  /runs/:id/events       Websocket stream of run lifecycle events
//	                            (":id" may be "all" to observe every run)
//	GET  /health                Liveness probe
//	GET  /ready                 Readiness probe
//	GET  /debug/snapshot        Inspect one published snapshot
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.POST("/index", handlers.HandleIndex)
	rg.GET("/index/stats", handlers.HandleIndexStats)

	rg.POST("/run", handlers.HandleRun)
	rg.GET("/runs/:id", handlers.HandleGetRun)
	rg.GET("/runs/:id/events", handlers.HandleRunEvents)

	rg.GET("/health", handlers.HandleHealth)
	rg.GET("/ready", handlers.HandleReady)

	rg.GET("/debug/snapshot", handlers.HandleDebugSnapshot)
}
