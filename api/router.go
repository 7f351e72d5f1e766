package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter wires every REST route plus the socket upgrade endpoint.
// socket may be nil in tests that only exercise the REST surface.
func NewRouter(h *Handlers, socket http.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.health)

	api := router.Group("/api")
	{
		api.POST("/conversations", h.createConversation)
		api.GET("/conversations", h.listConversations)
		api.GET("/conversations/:id", h.getConversation)
		api.GET("/conversations/:id/messages", h.listMessages)
		api.GET("/conversations/:id/messages/search", h.searchMessages)
		api.POST("/conversations/:id/read", h.markRead)
		api.POST("/messages", h.sendMessage)
		api.GET("/notifications", h.listNotifications)
		api.POST("/calls", h.createCall)
		api.PATCH("/calls/:id/status", h.updateCallStatus)
		api.GET("/calls", h.listCalls)
		api.GET("/stats", h.getStats)
	}

	if socket != nil {
		router.GET("/ws", gin.WrapF(socket))
	}
	return router
}
