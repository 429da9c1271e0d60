package app

import (
	"time"

	"github.com/yungbote/neurobridge-backend/internal/bus"
	"github.com/yungbote/neurobridge-backend/internal/notifier"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
	"github.com/yungbote/neurobridge-backend/internal/registry"
	"github.com/yungbote/neurobridge-backend/internal/utils"
)

// Config is every environment-driven knob this service reads at startup,
// loaded once in New and threaded into the components that need it.
type Config struct {
	Port string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Registry registry.Config
	Bus      bus.Config
	Notifier notifier.Config

	GCPProjectID   string
	GCPLocation    string
	GCPProcessorID string

	MetricsAddr string
	OtelEnabled bool
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port: utils.GetEnv("PORT", "8080", log),

		RedisAddr:     utils.GetEnv("REDIS_ADDR", "localhost:6379", log),
		RedisPassword: utils.GetEnv("REDIS_PASSWORD", "", log),
		RedisDB:       utils.GetEnvAsInt("REDIS_DB", 0, log),

		Registry: registry.Config{
			LivenessTTL: utils.GetEnvAsDuration("JOB_LIVENESS_TTL", 2*time.Hour, log),
			SnapshotTTL: utils.GetEnvAsDuration("JOB_SNAPSHOT_TTL", 24*time.Hour, log),
		},
		Bus: bus.Config{
			ProgressChannel: utils.GetEnv("BUS_PROGRESS_CHANNEL", "progress-channel", log),
			ResultChannel:   utils.GetEnv("BUS_RESULT_CHANNEL", "result-channel", log),
			FailureChannel:  utils.GetEnv("BUS_FAILURE_CHANNEL", "failure-channel", log),
		},
		Notifier: notifier.Config{
			DocumentCompleteURL:  utils.GetEnv("DOCUMENT_COMPLETE_CALLBACK_URL", "", log),
			BlockCallbackURL:     utils.GetEnv("BLOCK_CALLBACK_URL", "", log),
			ThumbnailCallbackURL: utils.GetEnv("THUMBNAIL_CALLBACK_URL", "", log),
			CallbackToken:        utils.GetEnv("CALLBACK_TOKEN", "", log),
			MaxRetries:           utils.GetEnvAsInt("CALLBACK_MAX_RETRIES", 3, log),
			Timeout:              utils.GetEnvAsDuration("CALLBACK_TIMEOUT", 30*time.Second, log),
		},

		GCPProjectID:   utils.GetEnv("GCP_PROJECT_ID", "", log),
		GCPLocation:    utils.GetEnv("GCP_DOCAI_LOCATION", "us", log),
		GCPProcessorID: utils.GetEnv("GCP_DOCAI_PROCESSOR_ID", "", log),

		MetricsAddr: utils.GetEnv("METRICS_ADDR", ":9090", log),
		OtelEnabled: utils.GetEnvAsBool("OTEL_ENABLED", false, log),
	}
}
