package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

// Channel name recorded on notification records.
const Channel = "slack"

// Notifier delivers research briefs to a Slack incoming webhook using
// Block Kit formatting.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the webhook target.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Deliver posts the brief as a Block Kit message.
func (n *Notifier) Deliver(ctx context.Context, brief domain.Brief) error {
	if n.webhookURL == "" || n.client == nil {
		return fmt.Errorf("slack notifier misconfigured")
	}
	if brief.Empty() {
		return fmt.Errorf("refusing to deliver empty brief for run %s", brief.RunID)
	}

	payload, err := json.Marshal(map[string]any{"blocks": buildBlocks(brief)})
	if err != nil {
		return fmt.Errorf("marshal blocks: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack error: %s", resp.Status)
	}

	return nil
}

type block map[string]any

func buildBlocks(brief domain.Brief) []block {
	blocks := []block{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": "AI Research Brief", "emoji": true},
		},
		{
			"type": "context",
			"elements": []map[string]any{{
				"type": "plain_text",
				"text": fmt.Sprintf("%s • %d insights • %d topics considered",
					brief.GeneratedAt.UTC().Format("January 2, 2006 at 15:04 UTC"),
					len(brief.Angles), brief.TopicsConsidered),
			}},
		},
		{"type": "divider"},
	}

	for i, angle := range brief.Angles {
		insight := angle.Insight
		if insight == "" {
			insight = angle.Stance
		}

		blocks = append(blocks, block{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Insight %d*\n\n*%s*\n\n%s", i+1, insight, angle.WhyItMatters),
			},
		})

		if len(angle.RelevantFor) > 0 {
			blocks = append(blocks, block{
				"type": "context",
				"elements": []map[string]any{{
					"type": "mrkdwn",
					"text": "*Relevant for:* " + strings.Join(angle.RelevantFor, ", "),
				}},
			})
		}

		if len(angle.FramingPoints) > 0 {
			var b strings.Builder
			b.WriteString("*Framing ideas:*\n")
			for _, point := range angle.FramingPoints {
				b.WriteString("• ")
				b.WriteString(point)
				b.WriteByte('\n')
			}
			blocks = append(blocks, block{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": b.String()},
			})
		}

		if len(angle.SupportingLinks) > 0 {
			blocks = append(blocks, block{
				"type": "context",
				"elements": []map[string]any{{
					"type": "mrkdwn",
					"text": "*Links:* " + strings.Join(angle.SupportingLinks, " · "),
				}},
			})
		}

		blocks = append(blocks, block{"type": "divider"})
	}

	return blocks
}
