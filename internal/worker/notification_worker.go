package worker

import (
	"github.com/fieldops/auth-service/internal/service"
)

// StartNotificationWorker registers notification handlers on the service's dispatcher.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
