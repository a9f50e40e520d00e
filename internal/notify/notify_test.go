package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lepinkainen/og-monitor/pkg/changes"
	"github.com/lepinkainen/og-monitor/pkg/monitor"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

func testNotification(destination string) monitor.Notification {
	prev, cur := "https://x.com/a.png", "https://x.com/a.png"
	return monitor.Notification{
		Destination: destination,
		Monitor:     monitor.Monitor{ID: "m1", URL: "https://x.com/", Nickname: "Home"},
		Check:       monitor.Check{ID: "c1", Status: validate.StatusBroken, CheckedAt: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		Alert: monitor.Alert{
			ID:            "a1",
			Type:          changes.ImageBroken,
			Message:       changes.ImageBroken.Message(),
			PreviousValue: &prev,
			CurrentValue:  &cur,
		},
	}
}

func TestSubjectAndBody(t *testing.T) {
	n := testNotification("")
	if got := Subject(n); got != "[og-monitor] Home: Image is no longer accessible" {
		t.Errorf("Subject() = %q", got)
	}
	body := Body(n)
	for _, want := range []string{"URL: https://x.com/", "Status: broken", "Before: https://x.com/a.png", "Checked: 2026-06-01 09:00 UTC"} {
		if !strings.Contains(body, want) {
			t.Errorf("Body() missing %q:\n%s", want, body)
		}
	}
}

func TestWebhookChannel(t *testing.T) {
	var attempts atomic.Int32
	var received WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ch, err := NewWebhookChannel(WebhookConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewWebhookChannel() error = %v", err)
	}
	if err := ch.Notify(context.Background(), testNotification("ops@example.com")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want a retry after 503", attempts.Load())
	}
	if received.Monitor.ID != "m1" || received.Check.Status != "broken" || received.Alert.Type != changes.ImageBroken {
		t.Errorf("payload = %+v", received)
	}
	if !strings.HasPrefix(received.Text, "[og-monitor] Home") || received.Content != received.Text {
		t.Errorf("payload text = %q", received.Text)
	}
}

func TestWebhookDestinationOverride(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	ch, _ := NewWebhookChannel(WebhookConfig{})
	if err := ch.Notify(context.Background(), testNotification("")); err == nil {
		t.Error("Notify() without any URL should fail")
	}
	if err := ch.Notify(context.Background(), testNotification(server.URL+"/hook")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d", hits.Load())
	}
}

func TestWebhookRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer server.Close()

	ch, _ := NewWebhookChannel(WebhookConfig{URL: server.URL})
	err := ch.Notify(context.Background(), testNotification(""))
	if err == nil || !strings.Contains(err.Error(), "invalid_payload") {
		t.Errorf("Notify() error = %v, want body excerpt", err)
	}
}

func TestWebhookOAuth2(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("token request form = %v, %v", r.Form, err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"secret-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	var auth string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer hook.Close()

	ch, err := NewWebhookChannel(WebhookConfig{
		URL:    hook.URL,
		OAuth2: OAuth2Config{TokenURL: tokenServer.URL, ClientID: "id", ClientSecret: "s3cret"},
	})
	if err != nil {
		t.Fatalf("NewWebhookChannel() error = %v", err)
	}
	if err := ch.Notify(context.Background(), testNotification("")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if auth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestEmailChannel(t *testing.T) {
	if _, err := NewEmailChannel(EmailConfig{From: "a@b"}); err == nil {
		t.Error("NewEmailChannel() without host should fail")
	}

	ch, err := NewEmailChannel(EmailConfig{Host: "smtp.example.com", Username: "u", Password: "p", From: "og@example.com", To: "fallback@example.com"})
	if err != nil {
		t.Fatalf("NewEmailChannel() error = %v", err)
	}

	var gotAddr string
	var gotTo []string
	var gotMsg string
	ch.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		if a == nil {
			t.Error("expected SMTP auth")
		}
		return nil
	}

	if err := ch.Notify(context.Background(), testNotification("owner@example.com")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if !reflect.DeepEqual(gotTo, []string{"owner@example.com"}) {
		t.Errorf("to = %v", gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: [og-monitor] Home: Image is no longer accessible\r\n") {
		t.Errorf("message:\n%s", gotMsg)
	}

	if err := ch.Notify(context.Background(), testNotification("https://hooks.example/x")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if !reflect.DeepEqual(gotTo, []string{"fallback@example.com"}) {
		t.Errorf("non-email destination should use the configured recipient, got %v", gotTo)
	}

	ch.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 busy") }
	if err := ch.Notify(context.Background(), testNotification("")); err == nil {
		t.Error("Notify() should surface send errors")
	}
}

type stubChannel struct {
	name  string
	err   error
	calls int
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Notify(context.Context, monitor.Notification) error {
	s.calls++
	return s.err
}

func TestMultiDeliversToEveryChannel(t *testing.T) {
	failing := &stubChannel{name: "email", err: errors.New("smtp down")}
	ok := &stubChannel{name: "log"}
	m := NewMulti(failing, ok)

	err := m.Notify(context.Background(), testNotification(""))
	if err == nil || !strings.Contains(err.Error(), "email: smtp down") {
		t.Errorf("Notify() error = %v", err)
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Errorf("calls = %d, %d; a failure must not stop later channels", failing.calls, ok.calls)
	}
	if !reflect.DeepEqual(m.Channels(), []string{"email", "log"}) {
		t.Errorf("Channels() = %v", m.Channels())
	}
}

func TestRegistry(t *testing.T) {
	if got := DefaultRegistry.List(); !reflect.DeepEqual(got, []string{"email", "log", "webhook"}) {
		t.Errorf("List() = %v", got)
	}

	r := NewRegistry()
	info := &ChannelInfo{Name: "log", Factory: func(Config) (Channel, error) { return NewLogChannel(), nil }}
	if err := r.Register("log", info); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("log", info); err == nil {
		t.Error("duplicate Register() should fail")
	}
	if _, err := r.Create("sms", Config{}); err == nil {
		t.Error("Create(unknown) should fail")
	}

	multi, err := DefaultRegistry.Build(Config{})
	if err != nil || multi != nil {
		t.Errorf("Build(no channels) = %v, %v; want nil", multi, err)
	}

	multi, err = DefaultRegistry.Build(Config{Channels: []string{"log", "webhook"}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !reflect.DeepEqual(multi.Channels(), []string{"log", "webhook"}) {
		t.Errorf("Build() channels = %v", multi.Channels())
	}

	if _, err := DefaultRegistry.Build(Config{Channels: []string{"email"}}); err == nil {
		t.Error("Build(email) without SMTP settings should fail")
	}
}
