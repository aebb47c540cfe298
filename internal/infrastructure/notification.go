package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/yourusername/trackfetch-go/internal/domain"
	"go.uber.org/zap"
)

// NotificationService sends desktop notifications when jobs finish
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var binary string
	var args []string
	switch n.config.Method {
	case "osascript":
		binary = "osascript"
		script := fmt.Sprintf("display notification %s with title %s", appleScriptString(message), appleScriptString(title))
		args = []string{"-e", script}
	case "notify-send":
		binary = "notify-send"
		args = []string{title, message}
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	n.logger.Debug("Sending notification", zap.String("command", ShellCommandLine(binary, args...)))

	if err := n.run(binary, args...); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}
	return nil
}

// OnJobUpdated is a no-op; only outcomes are notified
func (n *NotificationService) OnJobUpdated(domain.Job) {}

// OnJobCompleted notifies completed and failed jobs. Cancellations are
// user-initiated and stay silent.
func (n *NotificationService) OnJobCompleted(job domain.Job) {
	track := truncateString(job.Query.Text(), 40)

	switch job.State {
	case domain.StateCompleted:
		_ = n.Send("Download Completed", track)
	case domain.StateFailed:
		message := track
		if job.RetryCount > 0 {
			message = fmt.Sprintf("%s (after %d retries)", track, job.RetryCount)
		}
		_ = n.Send("Download Failed", message)
	}
}

// appleScriptString quotes s as an AppleScript string literal
func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// truncateString truncates a string to the specified number of runes
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
