package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"briefbot/internal/db"
)

// Slack handles Slack webhook notifications
type Slack struct {
	client *http.Client
}

// NewSlack creates a new Slack webhook handler
func NewSlack() *Slack {
	return &Slack{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SlackBlock represents a Slack Block Kit block
type SlackBlock struct {
	Type   string         `json:"type"`
	Text   *SlackTextObj  `json:"text,omitempty"`
	Fields []SlackTextObj `json:"fields,omitempty"`
}

// SlackTextObj represents a Slack text object
type SlackTextObj struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// SlackAttachment represents a Slack attachment (for colored sidebar)
type SlackAttachment struct {
	Color  string       `json:"color"`
	Blocks []SlackBlock `json:"blocks"`
}

// SlackPayload represents the webhook payload
type SlackPayload struct {
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SendRunSummary posts a run outcome with per-step results to Slack.
func (s *Slack) SendRunSummary(webhookURL string, task *db.Task, run *db.TaskRun) error {
	var color, statusEmoji, statusText string
	switch run.Status {
	case db.RunStatusCompleted:
		color = "#00FF00"
		statusEmoji = ":white_check_mark:"
		statusText = "Completed"
	case db.RunStatusFailed:
		color = "#FF0000"
		statusEmoji = ":x:"
		statusText = "Failed"
	default:
		color = "#FFFF00"
		statusEmoji = ":hourglass:"
		statusText = "Running"
	}

	var duration string
	if run.EndedAt != nil {
		duration = run.EndedAt.Sub(run.StartedAt).Round(time.Second).String()
	} else {
		duration = "running"
	}

	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackTextObj{
				Type:  "plain_text",
				Text:  fmt.Sprintf("%s Task: %s", statusEmoji, task.Name),
				Emoji: true,
			},
		},
		{
			Type: "section",
			Fields: []SlackTextObj{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Status:*\n%s", statusText)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Duration:*\n%s", duration)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Schedule:*\n`%s` (%s)", task.CronExpr, task.Timezone)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Started:*\n%s", run.StartedAt.Format(time.RFC3339))},
			},
		},
		{Type: "divider"},
		{
			Type: "section",
			Text: &SlackTextObj{Type: "mrkdwn", Text: stepSummary(run)},
		},
	}

	payload := SlackPayload{
		Text: fmt.Sprintf("%s Task %q %s", statusEmoji, task.Name, statusText),
		Attachments: []SlackAttachment{
			{Color: color, Blocks: blocks},
		},
	}

	return s.post(webhookURL, payload)
}

func (s *Slack) post(webhookURL string, payload SlackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling slack payload: %w", err)
	}

	resp, err := s.client.Post(webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// stepSummary renders one mrkdwn line per attempted step.
func stepSummary(run *db.TaskRun) string {
	if len(run.StepResults) == 0 {
		if run.Error != "" {
			return fmt.Sprintf("_%s_", run.Error)
		}
		return "_No steps recorded_"
	}

	var b bytes.Buffer
	for _, result := range run.StepResults {
		mark := ":white_check_mark:"
		if result.Status == db.StepStatusFailed {
			mark = ":x:"
		}
		fmt.Fprintf(&b, "%s `%s.%s`", mark, result.Service, result.Operation)
		if result.Error != "" {
			fmt.Fprintf(&b, ": %s", result.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}
