package pipeline

import (
	"context"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// NotificationWorker implements NOTIFICATION. Its work — publish the bus
// result message and invoke the document-complete callback — is exactly
// what JobContext.Succeed performs once every stage including this one has
// returned, so this worker itself is a no-op that only reports completion;
// splitting the emission out from the terminal transition would let a
// crash between them leave the job PROCESSING forever with no result ever
// published.
type NotificationWorker struct {
	log *logger.Logger
}

func NewNotificationWorker(log *logger.Logger) *NotificationWorker {
	return &NotificationWorker{log: log.With("component", "Notification")}
}

func (w *NotificationWorker) Stage() jobdomain.StageID { return jobdomain.StageNotification }

func (w *NotificationWorker) Run(ctx context.Context, st *State, report func(float64)) error {
	report(100)
	return nil
}
