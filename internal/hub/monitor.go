package hub

import (
	"time"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	connectionStats := ms.getConnectionStats()
	clients := ms.getClientList()

	status := "healthy"
	if connectionStats.TotalConnected == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connectionStats,
		Clients:     clients,
	}
}

func (ms *MonitorService) getConnectionStats() model.ConnectionStats {
	ms.hub.mu.RLock()
	defer ms.hub.mu.RUnlock()

	stats := model.ConnectionStats{
		TotalConnected: len(ms.hub.onlineUsers),
	}
	for _, sockets := range ms.hub.onlineUsers {
		stats.TotalSockets += len(sockets)
	}
	return stats
}

func (ms *MonitorService) getClientList() []model.ClientInfo {
	ms.hub.mu.RLock()
	defer ms.hub.mu.RUnlock()

	clients := make([]model.ClientInfo, 0)
	for _, sockets := range ms.hub.onlineUsers {
		for _, client := range sockets {
			clients = append(clients, model.ClientInfo{
				ClientID:    client.ID,
				UserID:      client.userID,
				ConnectedAt: client.connectedAt.Format(time.RFC3339),
				Watching:    client.WatchCount(),
			})
		}
	}
	return clients
}
