package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/configuration"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/handler"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/hub"
)

// MonitorRouters sets up monitoring API routes
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	// Create monitor service with hub reference
	monitorService := hub.NewMonitorService(container.Hub)

	// Create monitor handler
	monitorHandler := handler.NewMonitorHandler(monitorService)

	// Monitor API group
	monitorGroup := router.Group("/api/monitor")
	{
		// GET /api/monitor/stats - Get hub statistics
		monitorGroup.GET("/stats", monitorHandler.GetHubStats)
	}
}
