package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/configuration"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/middleware"
)

// ChatRouters wires the conversation REST surface under /api/conversations.
func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/api/conversations")
	chatRoute.Use(middleware.JWTAuth(container.Config.Auth.JWTSecret))
	{
		chatRoute.GET("", container.ChatHandler.ListConversations)
		chatRoute.POST("", container.ChatHandler.CreateConversation)
		chatRoute.GET("/:conversationId/messages", container.ChatHandler.GetMessages)
		chatRoute.POST("/:conversationId/messages", container.ChatHandler.SendMessage)
		chatRoute.POST("/:conversationId/read", container.ChatHandler.MarkRead)
	}
}
