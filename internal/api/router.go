package api

import (
	"family-organizer/internal/app"
	"family-organizer/internal/auth"
	"family-organizer/internal/handlers"
	"family-organizer/internal/websocket"

	"github.com/gin-gonic/gin"
)

func SetupRouter(a *app.App, hub *websocket.Hub) *gin.Engine {
	router := gin.Default()

	// Custom CORS middleware
	router.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		for _, allowedOrigin := range a.Config.CORS.AllowedOrigins {
			if origin == allowedOrigin {
				c.Header("Access-Control-Allow-Origin", origin)
				break
			}
		}
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Length, Content-Type, Authorization")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	authHandler := handlers.NewAuthHandler(a)
	familyHandler := handlers.NewFamilyHandler(a)
	itemHandler := handlers.NewItemHandler(a)
	wsHandler := handlers.NewWebSocketHandler(hub)

	router.GET("/healthz", handlers.Health(a))
	router.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	// Public routes
	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/anonymous", authHandler.SignInAnonymously)
			authRoutes.POST("/token", authHandler.ExchangeToken)
		}
	}

	jwtMiddleware := auth.JWTMiddleware(a.JWT)

	// Protected routes
	protected := api.Group("")
	protected.Use(jwtMiddleware)
	{
		family := protected.Group("/family")
		{
			family.GET("", familyHandler.GetFamily)
			family.POST("", familyHandler.CreateFamily)
			family.POST("/join", familyHandler.JoinFamily)
			family.POST("/leave", familyHandler.LeaveFamily)
		}

		items := protected.Group("/items")
		{
			items.GET("", itemHandler.GetItems)
			items.POST("", itemHandler.CreateItem)
			items.POST("/clear-completed", itemHandler.ClearCompleted)
			items.POST("/:id/toggle", itemHandler.ToggleItem)
			items.DELETE("/:id", itemHandler.DeleteItem)
		}

		protected.GET("/connections", wsHandler.GetConnections)
	}

	router.GET("/ws", jwtMiddleware, wsHandler.HandleWebSocket)

	return router
}
