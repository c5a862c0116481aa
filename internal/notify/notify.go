// Package notify posts run summaries to per-task Slack and Discord webhooks.
package notify

import (
	"github.com/charmbracelet/log"

	"briefbot/internal/db"
)

// Notifier fans a run summary out to whichever webhooks a task configures.
type Notifier struct {
	slack   *Slack
	discord *Discord
	log     *log.Logger
}

// NewNotifier creates a notifier with both webhook handlers.
func NewNotifier(logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{
		slack:   NewSlack(),
		discord: NewDiscord(),
		log:     logger.WithPrefix("notify"),
	}
}

// NotifyRun sends the run summary to the task's configured webhooks.
// Notification failures are logged, never propagated: a missed notification
// must not fail a run that already delivered.
func (n *Notifier) NotifyRun(task *db.Task, run *db.TaskRun) {
	if task.SlackWebhook != "" {
		if err := n.slack.SendRunSummary(task.SlackWebhook, task, run); err != nil {
			n.log.Warn("slack notification failed", "task", task.ID, "error", err)
		}
	}
	if task.DiscordWebhook != "" {
		if err := n.discord.SendRunSummary(task.DiscordWebhook, task, run); err != nil {
			n.log.Warn("discord notification failed", "task", task.ID, "error", err)
		}
	}
}
