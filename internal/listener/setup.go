package listener

import (
	"github.com/cryptotracker/imagebuild/controllers"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter maps the controller handlers to their paths. Probes stay
// outside the traced group.
func NewRouter(controller *controllers.HTTPController) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/v1/liveness", controller.Alive)
	router.GET("/v1/readiness", controller.Ready)

	group := router.Group("/v1")
	{
		group.Use(otelgin.Middleware("imagebuild-svc"))
		group.GET("/dockerfile", controller.Dockerfile)
		group.POST("/build", controller.Build)
		group.GET("/builds", controller.ListBuilds)
		group.GET("/builds/:id", controller.GetBuild)
		group.POST("/verify", controller.Verify)
		group.GET("/probe", controller.Probe)
	}
	return router
}
