package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-backend/internal/admission"
	nbhttp "github.com/yungbote/neurobridge-backend/internal/http"
	httpH "github.com/yungbote/neurobridge-backend/internal/http/handlers"
	"github.com/yungbote/neurobridge-backend/internal/observability"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
	"github.com/yungbote/neurobridge-backend/internal/registry"
)

// Handlers groups every HTTP-reachable collaborator this service exposes:
// the admission surface and the Query API, plus the ambient health check.
type Handlers struct {
	Health    *httpH.HealthHandler
	Admission *httpH.AdmissionHandler
	Job       *httpH.JobHandler
}

func wireHandlers(log *logger.Logger, reg *registry.Registry, adm *admission.Controller) Handlers {
	log.Info("wiring handlers")
	return Handlers{
		Health:    httpH.NewHealthHandler(),
		Admission: httpH.NewAdmissionHandler(log, adm),
		Job:       httpH.NewJobHandler(log, reg, adm),
	}
}

func wireRouter(log *logger.Logger, handlers Handlers, metrics *observability.Metrics) *gin.Engine {
	return nbhttp.NewRouter(nbhttp.RouterConfig{
		AdmissionHandler: handlers.Admission,
		JobHandler:       handlers.Job,
		HealthHandler:    handlers.Health,
		Metrics:          metrics,
		Log:              log,
	})
}
