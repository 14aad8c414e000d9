package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Slack posts to an incoming webhook using the legacy attachments envelope.
type Slack struct {
	WebhookURL string
	Footer     string
	HTTP       *http.Client
	now        func() time.Time
}

func NewSlack(webhookURL string, timeout time.Duration) *Slack {
	return &Slack{
		WebhookURL: webhookURL,
		Footer:     "poolwatch",
		HTTP:       &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (s *Slack) Channel() string { return "slack" }

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	TS     int64        `json:"ts"`
	Footer string       `json:"footer,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func (s *Slack) Send(ctx context.Context, msg Message) error {
	if s.WebhookURL == "" {
		return fmt.Errorf("slack webhook not configured")
	}
	att := slackAttachment{
		Color:  msg.Color,
		Title:  msg.Title,
		Text:   msg.Text,
		TS:     s.now().Unix(),
		Footer: s.Footer,
	}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, slackField{Title: f.Title, Value: f.Value, Short: true})
	}
	b, err := json.Marshal(slackPayload{Text: msg.Title, Attachments: []slackAttachment{att}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := s.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("slack status %d: %s", res.StatusCode, string(resp))
	}
	return nil
}
