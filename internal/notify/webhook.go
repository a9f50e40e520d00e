package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	ogmhttp "github.com/lepinkainen/og-monitor/pkg/http"
	"github.com/lepinkainen/og-monitor/pkg/monitor"
)

// WebhookConfig configures the webhook channel. OAuth2 is optional and uses
// the client credentials grant.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	OAuth2  OAuth2Config
}

// OAuth2Config holds client credentials for webhook endpoints that need them
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Enabled reports whether client credentials are configured
func (c OAuth2Config) Enabled() bool {
	return c.TokenURL != "" && c.ClientID != ""
}

// WebhookPayload is the JSON body posted to webhooks. Text is understood by
// Slack and similar chat services; Content by Discord.
type WebhookPayload struct {
	Text    string         `json:"text"`
	Content string         `json:"content"`
	Monitor webhookMonitor `json:"monitor"`
	Check   webhookCheck   `json:"check"`
	Alert   monitor.Alert  `json:"alert"`
}

type webhookMonitor struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Nickname string `json:"nickname,omitempty"`
}

type webhookCheck struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checkedAt"`
}

// WebhookChannel posts alerts as JSON
type WebhookChannel struct {
	url    string
	client *ogmhttp.Client
}

// NewWebhookChannel builds a webhook channel. A destination URL on the
// notification overrides cfg.URL, so cfg.URL may be empty.
func NewWebhookChannel(cfg WebhookConfig) (*WebhookChannel, error) {
	clientCfg := ogmhttp.DefaultConfig()
	if cfg.Timeout > 0 {
		clientCfg.Timeout = cfg.Timeout
	}

	if cfg.OAuth2.Enabled() {
		cc := &clientcredentials.Config{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			TokenURL:     cfg.OAuth2.TokenURL,
			Scopes:       cfg.OAuth2.Scopes,
		}
		clientCfg.Transport = &oauth2.Transport{
			Source: cc.TokenSource(context.Background()),
			Base:   http.DefaultTransport,
		}
	}

	return &WebhookChannel{url: cfg.URL, client: ogmhttp.NewClient(clientCfg)}, nil
}

// Name implements Channel
func (*WebhookChannel) Name() string { return ChannelWebhook }

// Notify implements monitor.Notifier
func (w *WebhookChannel) Notify(ctx context.Context, n monitor.Notification) error {
	target := w.url
	if isURL(n.Destination) {
		target = n.Destination
	}
	if target == "" {
		return fmt.Errorf("no webhook URL configured")
	}

	text := Subject(n) + "\n" + Body(n)
	payload := WebhookPayload{
		Text:    text,
		Content: text,
		Monitor: webhookMonitor{ID: n.Monitor.ID, URL: n.Monitor.URL, Nickname: n.Monitor.Nickname},
		Check:   webhookCheck{ID: n.Check.ID, Status: string(n.Check.Status), CheckedAt: n.Check.CheckedAt},
		Alert:   n.Alert,
	}

	resp, err := w.client.PostJSON(ctx, target, payload)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if err := ogmhttp.EnsureSuccess(resp); err != nil {
		return fmt.Errorf("webhook rejected notification: %w", err)
	}
	return resp.Body.Close()
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
