package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"briefbot/internal/db"
)

// Discord handles Discord webhook notifications
type Discord struct {
	client *http.Client
}

// NewDiscord creates a new Discord webhook handler
func NewDiscord() *Discord {
	return &Discord{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedField represents a field in a Discord embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// EmbedFooter represents the footer of a Discord embed
type EmbedFooter struct {
	Text string `json:"text"`
}

// DiscordPayload represents the webhook payload
type DiscordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// SendRunSummary posts a run outcome with per-step results to Discord.
func (d *Discord) SendRunSummary(webhookURL string, task *db.Task, run *db.TaskRun) error {
	var color int
	var statusEmoji string
	switch run.Status {
	case db.RunStatusCompleted:
		color = 0x00FF00
		statusEmoji = "✅"
	case db.RunStatusFailed:
		color = 0xFF0000
		statusEmoji = "❌"
	default:
		color = 0xFFFF00
		statusEmoji = "⏳"
	}

	var duration string
	if run.EndedAt != nil {
		duration = run.EndedAt.Sub(run.StartedAt).Round(time.Second).String()
	} else {
		duration = "running"
	}

	embed := DiscordEmbed{
		Title:       fmt.Sprintf("%s Task: %s", statusEmoji, task.Name),
		Description: discordStepList(run),
		Color:       color,
		Fields: []EmbedField{
			{Name: "Status", Value: string(run.Status), Inline: true},
			{Name: "Duration", Value: duration, Inline: true},
			{Name: "Schedule", Value: fmt.Sprintf("`%s` (%s)", task.CronExpr, task.Timezone), Inline: true},
		},
		Timestamp: run.StartedAt.Format(time.RFC3339),
		Footer:    &EmbedFooter{Text: "briefbot"},
	}

	if run.Error != "" {
		errMsg := run.Error
		if len(errMsg) > 500 {
			errMsg = errMsg[:500] + "..."
		}
		embed.Fields = append(embed.Fields, EmbedField{
			Name:   "⚠️ Error",
			Value:  fmt.Sprintf("```\n%s\n```", errMsg),
			Inline: false,
		})
	}

	payload := DiscordPayload{
		Embeds: []DiscordEmbed{embed},
	}

	return d.send(webhookURL, payload)
}

func discordStepList(run *db.TaskRun) string {
	if len(run.StepResults) == 0 {
		return "*No steps recorded*"
	}
	var b strings.Builder
	for _, result := range run.StepResults {
		mark := "✅"
		if result.Status == db.StepStatusFailed {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s `%s.%s`", mark, result.Service, result.Operation)
		if result.Error != "" {
			fmt.Fprintf(&b, ": %s", result.Error)
		}
		b.WriteString("\n")
	}
	// Discord caps embed descriptions at 4096 characters
	s := b.String()
	if len(s) > 3500 {
		s = s[:3500] + "\n\n*... (truncated)*"
	}
	return s
}

func (d *Discord) send(webhookURL string, payload DiscordPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest("POST", webhookURL, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
