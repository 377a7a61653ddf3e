package worker

import (
	"github.com/spec-kit/itsm-triage/internal/service"
)

// StartRunNotifier registers the run notifier's event handlers.
func StartRunNotifier(notifier *service.RunNotifier) {
	if notifier == nil {
		return
	}
	notifier.RegisterHandlers()
}
