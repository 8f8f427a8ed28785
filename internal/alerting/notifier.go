package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification carries the summary of one ingestion cycle.
type Notification struct {
	RunID          string
	StartedAt      time.Time
	Elapsed        time.Duration
	Status         string
	Pages          int
	Listed         int
	Inserted       int
	Updated        int
	Dropped        int
	Failed         int
	PersistFailed  int
	FailureRatePct decimal.Decimal
	ThresholdPct   decimal.Decimal
	Channels       []string
	AdditionalMsg  string
}

// Notifier delivers cycle notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier posts messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *resty.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   resty.New().SetTimeout(timeout),
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered cycle summary.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode())
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("run_id", note.RunID).
		Str("status", note.Status).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("cycle report sent (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[MOEX bond ingestion]\n")
	builder.WriteString(fmt.Sprintf("Run: %s (%s)\n", note.RunID, note.Status))
	builder.WriteString(fmt.Sprintf("Started: %s UTC, took %s\n", note.StartedAt.UTC().Format(time.RFC3339), note.Elapsed.Round(time.Second)))
	builder.WriteString(fmt.Sprintf("Listed: %d bonds on %d pages\n", note.Listed, note.Pages))
	builder.WriteString(fmt.Sprintf("Stored: %d new, %d updated\n", note.Inserted, note.Updated))
	builder.WriteString(fmt.Sprintf("Dropped: %d, failed: %d, not persisted: %d\n", note.Dropped, note.Failed, note.PersistFailed))
	if !note.ThresholdPct.IsZero() {
		builder.WriteString(fmt.Sprintf("Failure rate: %s%% (threshold %s%%)\n", note.FailureRatePct.StringFixed(2), note.ThresholdPct.StringFixed(2)))
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
