package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/neurobridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-backend/internal/http/middleware"
	"github.com/yungbote/neurobridge-backend/internal/observability"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// RouterConfig wires every HTTP-reachable collaborator: the admission
// surface, the Query API, and the ambient health/metrics endpoints.
type RouterConfig struct {
	AdmissionHandler *httpH.AdmissionHandler
	JobHandler       *httpH.JobHandler
	HealthHandler    *httpH.HealthHandler
	Metrics          *observability.Metrics
	Log              *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	if cfg.AdmissionHandler != nil {
		r.POST("/process/async", cfg.AdmissionHandler.Submit)
		r.POST("/thumbnail", cfg.AdmissionHandler.SubmitThumbnail)
	}

	if cfg.JobHandler != nil {
		r.GET("/process/status/:job_id", cfg.JobHandler.GetStatus)
		r.GET("/result/:job_id", cfg.JobHandler.GetResult)
		r.GET("/jobs", cfg.JobHandler.ListActive)
		r.DELETE("/jobs/:job_id", cfg.JobHandler.Cancel)
	}

	return r
}
