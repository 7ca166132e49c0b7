package infrastructure

import (
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"github.com/klyp/klyp-go/internal/domain"
)

// SettingsReader is the slice of the settings store the notifier consults
type SettingsReader interface {
	GetBool(key string) bool
}

// Subscriber is the bus surface the notifier attaches to
type Subscriber interface {
	Subscribe(kind domain.EventKind, callback func(domain.Event)) string
}

// notificationsEnabledKey mirrors settings.KeyNotificationsEnabled without
// importing the settings package from infrastructure
const notificationsEnabledKey = "notifications_enabled"

// DesktopNotifier delivers best-effort desktop notifications. Delivery
// failures are logged and never surface to callers.
type DesktopNotifier struct {
	settings SettingsReader
	log      *zap.Logger
}

// NewDesktopNotifier creates a notifier gated by the notifications setting
func NewDesktopNotifier(settings SettingsReader, log *zap.Logger) *DesktopNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &DesktopNotifier{settings: settings, log: log}
}

// Notify sends a notification using the platform's native mechanism
func (n *DesktopNotifier) Notify(summary, body string) {
	if n.settings != nil && !n.settings.GetBool(notificationsEnabledKey) {
		n.log.Debug("notifications disabled, skipping",
			zap.String("summary", summary))
		return
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title %q`, body, summary)
		cmd = exec.Command("osascript", "-e", script)
	default:
		cmd = exec.Command("notify-send", summary, body)
	}

	if err := cmd.Run(); err != nil {
		n.log.Debug("failed to send notification",
			zap.String("summary", summary),
			zap.Error(err))
		return
	}
	n.log.Debug("notification sent", zap.String("summary", summary))
}

// AttachToBus subscribes the notifier to download outcomes. Stops are
// user-initiated and never notified.
func (n *DesktopNotifier) AttachToBus(bus Subscriber) {
	bus.Subscribe(domain.EventDownloadComplete, func(event domain.Event) {
		payload, ok := event.Payload.(domain.DownloadCompletePayload)
		if !ok {
			return
		}
		n.Notify("Download Complete", fmt.Sprintf("Saved to %s", payload.FilePath))
	})
	bus.Subscribe(domain.EventDownloadFailed, func(event domain.Event) {
		payload, ok := event.Payload.(domain.DownloadFailedPayload)
		if !ok {
			return
		}
		n.Notify("Download Failed", payload.Error)
	})
}
