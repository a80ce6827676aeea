package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/richroberts-prog/air-demand/internal/model"
)

// maxRolesPerSection caps how many roles one message lists per section.
const maxRolesPerSection = 10

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier posts digests to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts one message per digest.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Notify sends the digest as a single Block Kit message. An empty digest
// sends nothing. A 429 is retried once after Retry-After.
func (s *SlackNotifier) Notify(d model.Digest) error {
	if d.Empty() {
		return nil
	}

	body, err := json.Marshal(buildPayload(d))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(body)
	if err != nil {
		return err
	}
	retried := false
	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter)
		time.Sleep(retryAfter)
		if status, _, err = s.post(body); err != nil {
			return fmt.Errorf("retry: %w", err)
		}
		retried = true
	}
	if status != http.StatusOK {
		return fmt.Errorf("slack returned %d", status)
	}

	s.logger.Info("slack digest sent",
		"run_id", d.RunID,
		"new", len(d.New),
		"changed", len(d.Changed),
		"retried", retried,
	)
	return nil
}

func (s *SlackNotifier) post(body []byte) (status int, retryAfter time.Duration, err error) {
	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
	return resp.StatusCode, time.Duration(max(secs, 1)) * time.Second, nil
}

// Block Kit payload types.

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendTestMessage sends a one-role digest to verify the integration works.
func SendTestMessage(n model.Notifier) error {
	now := time.Now().UTC()
	salary := int64(240000)
	fee := 18.0
	return n.Notify(model.Digest{
		RunID:       "test",
		Since:       now,
		GeneratedAt: now,
		New: []model.DigestEntry{{
			Role: model.Role{
				ExternalID: "test-001",
				Fields: model.Fields{
					Title:       "Test Notification: Integration Verified",
					Company:     model.Company{Name: "Air Demand"},
					SalaryUpper: &salary,
					PercentFee:  &fee,
					Locations:   []string{"London"},
				},
				Status:      model.StatusActive,
				FirstSeenAt: now,
				LastSeenAt:  now,
				Assessment: model.Assessment{
					Tier:    model.TierQualified,
					Reasons: []string{"test message"},
					Scores: &model.Scores{
						Combined:    0.9,
						DisplayTier: model.DisplayHot,
						Signals:     []string{"integration check"},
					},
				},
			},
		}},
	})
}

var displayEmoji = map[model.DisplayTier]string{
	model.DisplayHot:      "🔥",
	model.DisplayWarm:     "🟠",
	model.DisplayLukewarm: "🟡",
	model.DisplayCold:     "🔵",
}

func buildPayload(d model.Digest) slackPayload {
	summary := fmt.Sprintf("%d new, %d changed roles", len(d.New), len(d.Changed))
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "Air Demand: " + summary},
		},
	}
	if d.RunID != "" {
		blocks = append(blocks, slackBlock{
			Type:     "context",
			Elements: []slackText{{Type: "mrkdwn", Text: "Run `" + d.RunID + "` · " + d.GeneratedAt.Format(time.RFC1123)}},
		})
	}

	blocks = appendSection(blocks, "*New roles*", d.New, false)
	blocks = appendSection(blocks, "*Changed roles*", d.Changed, true)

	return slackPayload{Text: summary, Blocks: blocks}
}

func appendSection(blocks []slackBlock, title string, entries []model.DigestEntry, withChanges bool) []slackBlock {
	if len(entries) == 0 {
		return blocks
	}
	blocks = append(blocks,
		slackBlock{Type: "divider"},
		slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: title}},
	)
	for i, e := range entries {
		if i == maxRolesPerSection {
			blocks = append(blocks, slackBlock{
				Type:     "context",
				Elements: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("…and %d more", len(entries)-i)}},
			})
			break
		}
		blocks = append(blocks, roleBlock(e, withChanges))
	}
	return blocks
}

func roleBlock(e model.DigestEntry, withChanges bool) slackBlock {
	r := e.Role
	a := r.Assessment

	var b strings.Builder
	head := fmt.Sprintf("*%s* at %s", r.Fields.Title, r.Fields.Company.Name)
	if a.Scores != nil {
		head = fmt.Sprintf("%s %s  (%.2f)", displayEmoji[a.Scores.DisplayTier], head, a.Scores.Combined)
	}
	b.WriteString(head)

	var facts []string
	facts = append(facts, string(a.Tier))
	if r.Fields.SalaryUpper != nil {
		facts = append(facts, fmt.Sprintf("up to $%dk", *r.Fields.SalaryUpper/1000))
	}
	if r.Fields.PercentFee != nil {
		facts = append(facts, fmt.Sprintf("%g%% fee", *r.Fields.PercentFee))
	}
	if len(r.Fields.Locations) > 0 {
		facts = append(facts, strings.Join(r.Fields.Locations, ", "))
	}
	if a.Trend != model.TrendNone {
		facts = append(facts, string(a.Trend))
	}
	b.WriteString("\n" + strings.Join(facts, " · "))

	if a.Scores != nil && len(a.Scores.Signals) > 0 {
		b.WriteString("\n• " + strings.Join(a.Scores.Signals, "\n• "))
	}
	if withChanges {
		for _, c := range e.Changes {
			fmt.Fprintf(&b, "\n↳ %s: %s → %s", c.Field, orDash(c.OldValue), orDash(c.NewValue))
		}
	}
	return slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: b.String()}}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
