package handlers

import (
	"net/http"

	"family-organizer/internal/app"

	"github.com/gin-gonic/gin"
)

func Health(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"backend":    a.Config.Store.Backend,
			"deployment": a.Config.DeploymentID,
		})
	}
}
