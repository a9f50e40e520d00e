package monitor_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lepinkainen/og-monitor/internal/storage/memory"
	"github.com/lepinkainen/og-monitor/pkg/changes"
	"github.com/lepinkainen/og-monitor/pkg/monitor"
	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// site serves canned pages and image statuses keyed by URL
type site struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	images map[string]opengraph.ImageStatus
	calls  int
}

func newSite() *site {
	return &site{
		pages:  make(map[string]string),
		errs:   make(map[string]error),
		images: make(map[string]opengraph.ImageStatus),
	}
}

func (s *site) setPage(url, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = html
	delete(s.errs, url)
}

func (s *site) setError(url string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[url] = err
}

func (s *site) setImage(url string, status opengraph.ImageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[url] = status
}

func (s *site) Fetch(_ context.Context, url string) (*opengraph.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.errs[url]; ok {
		return nil, err
	}
	html, ok := s.pages[url]
	if !ok {
		return nil, &opengraph.FetchError{Kind: opengraph.FetchHTTPStatus, URL: url, StatusCode: 404}
	}
	return &opengraph.Page{HTML: html, FinalURL: url, StatusCode: 200, ContentType: "text/html"}, nil
}

func (s *site) Check(_ context.Context, url string) opengraph.ImageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.images[url]; ok {
		return status
	}
	return opengraph.InvalidImage(opengraph.ImageNotFound, "image returned HTTP 404")
}

type failingLocker struct{ err error }

func (l failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, l.err
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []monitor.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, notification monitor.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return n.err
}

func ogPage(title, description, image string) string {
	var b strings.Builder
	b.WriteString("<html><head>")
	if title != "" {
		fmt.Fprintf(&b, `<meta property="og:title" content="%s">`, title)
	}
	if description != "" {
		fmt.Fprintf(&b, `<meta property="og:description" content="%s">`, description)
	}
	if image != "" {
		fmt.Fprintf(&b, `<meta property="og:image" content="%s">`, image)
		b.WriteString(`<meta property="og:image:width" content="1200"><meta property="og:image:height" content="630">`)
	}
	b.WriteString(`<meta name="twitter:card" content="summary_large_image">`)
	b.WriteString("</head><body><p>Some readable article text for the page body.</p></body></html>")
	return b.String()
}

type fixture struct {
	store    *memory.Store
	site     *site
	notifier *recordingNotifier
	orch     *monitor.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), site: newSite(), notifier: &recordingNotifier{}}
	f.orch = monitor.NewOrchestrator(monitor.Options{
		Store:       f.store,
		Fetcher:     f.site,
		Probe:       f.site,
		Notifier:    f.notifier,
		Destination: "default@example.com",
		Now:         func() time.Time { return testNow },
	})
	return f
}

func (f *fixture) addMonitor(t *testing.T, url string, alerts bool) *monitor.Monitor {
	t.Helper()
	m := monitor.NewMonitor("alice", url, monitor.FrequencyDaily, testNow.Add(-48*time.Hour))
	m.AlertsEnabled = alerts
	if err := f.store.CreateMonitor(context.Background(), m); err != nil {
		t.Fatalf("CreateMonitor() error = %v", err)
	}
	return m
}

func (f *fixture) run(t *testing.T, id string, trigger monitor.Trigger) *monitor.Outcome {
	t.Helper()
	out, err := f.orch.RunCheck(context.Background(), id, trigger)
	if err != nil {
		t.Fatalf("RunCheck() error = %v", err)
	}
	return out
}

func (f *fixture) alerts(t *testing.T, monitorID string) []monitor.Alert {
	t.Helper()
	alerts, err := f.store.ListAlerts(context.Background(), monitorID, nil, 0)
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	return alerts
}

func TestRunCheckHealthyPage(t *testing.T) {
	f := newFixture(t)
	const url = "https://x.com/"
	f.site.setPage(url, ogPage("Example", "A site.", "https://x.com/i.png"))
	f.site.setImage("https://x.com/i.png", opengraph.ValidImage("image/png"))
	m := f.addMonitor(t, url, true)

	out := f.run(t, m.ID, monitor.TriggerManual)

	if len(out.Issues) != 0 {
		t.Errorf("Issues = %+v, want none", out.Issues)
	}
	if out.Check.Status != validate.StatusHealthy || out.Monitor.Status != validate.StatusHealthy {
		t.Errorf("status check=%q monitor=%q, want healthy", out.Check.Status, out.Monitor.Status)
	}
	if len(out.Alerts) != 0 || len(out.Changes) != 0 {
		t.Errorf("first healthy check raised changes=%v alerts=%v", out.Changes, out.Alerts)
	}

	stored, err := f.store.GetMonitor(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("GetMonitor() error = %v", err)
	}
	if stored.Status != validate.StatusHealthy || stored.LastCheckedAt == nil || !stored.LastCheckedAt.Equal(testNow) {
		t.Errorf("stored monitor = %+v", stored)
	}
	if stored.LastSnapshot == nil || stored.LastSnapshot.Title != "Example" || !stored.LastSnapshot.ImageStatus.Valid {
		t.Errorf("LastSnapshot = %+v", stored.LastSnapshot)
	}

	checks, _ := f.store.ListChecks(context.Background(), m.ID, 0)
	if len(checks) != 1 || checks[0].Meta == nil || checks[0].Title != "Example" || checks[0].ImageStatus == nil {
		t.Errorf("persisted checks = %+v", checks)
	}
}

func TestRunCheckFetchTimeout(t *testing.T) {
	tests := []struct {
		name           string
		previousStatus validate.Status
		alertsEnabled  bool
		wantAlerts     int
	}{
		{name: "first failure alerts", previousStatus: validate.StatusHealthy, alertsEnabled: true, wantAlerts: 1},
		{name: "never checked alerts", previousStatus: "", alertsEnabled: true, wantAlerts: 1},
		{name: "already broken stays quiet", previousStatus: validate.StatusBroken, alertsEnabled: true, wantAlerts: 0},
		{name: "alerts disabled", previousStatus: validate.StatusHealthy, alertsEnabled: false, wantAlerts: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			const url = "https://slow.example/"
			m := f.addMonitor(t, url, tt.alertsEnabled)

			snap := &opengraph.Snapshot{Title: "Kept"}
			if tt.previousStatus != "" {
				if err := f.store.UpdateMonitorState(context.Background(), m.ID, tt.previousStatus, testNow.Add(-time.Hour), snap); err != nil {
					t.Fatalf("UpdateMonitorState() error = %v", err)
				}
			}

			f.site.setError(url, &opengraph.FetchError{Kind: opengraph.FetchTimeout, URL: url, Timeout: 10 * time.Second})
			out := f.run(t, m.ID, monitor.TriggerScheduled)

			if out.Check.Status != validate.StatusBroken || out.Check.Meta != nil {
				t.Errorf("check = %+v, want broken without metadata", out.Check)
			}
			if len(out.Issues) != 1 || out.Issues[0].Type != validate.SeverityError || !strings.Contains(out.Issues[0].Message, "timed out") {
				t.Errorf("Issues = %+v, want one timeout error", out.Issues)
			}
			if out.Issues[0].Field != validate.FieldURL {
				t.Errorf("issue field = %q, want url", out.Issues[0].Field)
			}

			alerts := f.alerts(t, m.ID)
			if len(alerts) != tt.wantAlerts || len(out.Alerts) != tt.wantAlerts {
				t.Fatalf("alerts stored=%d returned=%d, want %d", len(alerts), len(out.Alerts), tt.wantAlerts)
			}
			if tt.wantAlerts == 1 && alerts[0].Type != changes.StatusError {
				t.Errorf("alert type = %q, want status_error", alerts[0].Type)
			}

			stored, _ := f.store.GetMonitor(context.Background(), m.ID)
			if stored.Status != validate.StatusBroken || !stored.LastCheckedAt.Equal(testNow) {
				t.Errorf("stored monitor = %+v", stored)
			}
			if tt.previousStatus != "" && (stored.LastSnapshot == nil || stored.LastSnapshot.Title != "Kept") {
				t.Errorf("failed fetch replaced the last snapshot: %+v", stored.LastSnapshot)
			}
		})
	}
}

func TestRunCheckRepeatedFailureAlertsOnce(t *testing.T) {
	f := newFixture(t)
	const url = "https://down.example/"
	m := f.addMonitor(t, url, true)
	f.site.setError(url, &opengraph.FetchError{Kind: opengraph.FetchNetwork, URL: url, Err: errors.New("connection refused")})

	f.run(t, m.ID, monitor.TriggerScheduled)
	f.run(t, m.ID, monitor.TriggerScheduled)
	f.run(t, m.ID, monitor.TriggerManual)

	if alerts := f.alerts(t, m.ID); len(alerts) != 1 {
		t.Errorf("got %d alerts for a page that stayed down, want 1", len(alerts))
	}
	checks, _ := f.store.ListChecks(context.Background(), m.ID, 0)
	if len(checks) != 3 {
		t.Errorf("got %d checks, want 3", len(checks))
	}
}

func TestRunCheckBrokenImageRegression(t *testing.T) {
	for _, alertsEnabled := range []bool{true, false} {
		t.Run(fmt.Sprintf("alerts enabled %v", alertsEnabled), func(t *testing.T) {
			f := newFixture(t)
			const url, image = "https://x.com/post", "https://x.com/a.png"
			f.site.setPage(url, ogPage("Post", "About things.", image))
			f.site.setImage(image, opengraph.ValidImage("image/png"))
			m := f.addMonitor(t, url, alertsEnabled)

			f.run(t, m.ID, monitor.TriggerScheduled)

			f.site.setImage(image, opengraph.InvalidImage(opengraph.ImageNotFound, "image returned HTTP 404"))
			out := f.run(t, m.ID, monitor.TriggerScheduled)

			if len(out.Changes) != 1 || out.Changes[0].Type != changes.ImageBroken {
				t.Fatalf("Changes = %+v, want one image_broken", out.Changes)
			}
			c := out.Changes[0]
			if c.PreviousValue == nil || *c.PreviousValue != image || c.CurrentValue == nil || *c.CurrentValue != image {
				t.Errorf("change values = %v -> %v", c.PreviousValue, c.CurrentValue)
			}
			if out.Check.Status != validate.StatusBroken {
				t.Errorf("status = %q, want broken", out.Check.Status)
			}

			want := 0
			if alertsEnabled {
				want = 1
			}
			if alerts := f.alerts(t, m.ID); len(alerts) != want {
				t.Errorf("got %d alerts, want %d", len(alerts), want)
			}
			if len(f.notifier.sent) != want {
				t.Errorf("sent %d notifications, want %d", len(f.notifier.sent), want)
			}
		})
	}
}

func TestRunCheckPolicyByTrigger(t *testing.T) {
	tests := []struct {
		trigger    monitor.Trigger
		wantAlerts int
	}{
		{trigger: monitor.TriggerManual, wantAlerts: 1},
		{trigger: monitor.TriggerScheduled, wantAlerts: 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.trigger), func(t *testing.T) {
			f := newFixture(t)
			const url, image = "https://x.com/", "https://x.com/i.png"
			f.site.setImage(image, opengraph.ValidImage("image/png"))
			f.site.setPage(url, ogPage("Old title", "Same.", image))
			m := f.addMonitor(t, url, true)
			f.run(t, m.ID, tt.trigger)

			f.site.setPage(url, ogPage("New title", "Same.", image))
			out := f.run(t, m.ID, tt.trigger)

			if len(out.Alerts) != tt.wantAlerts {
				t.Fatalf("alerts = %+v, want %d", out.Alerts, tt.wantAlerts)
			}
			if tt.wantAlerts == 1 {
				a := out.Alerts[0]
				if a.Type != changes.TitleChanged || *a.PreviousValue != "Old title" || *a.CurrentValue != "New title" {
					t.Errorf("alert = %+v", a)
				}
				if a.CheckID != out.Check.ID {
					t.Errorf("alert CheckID = %q, want %q", a.CheckID, out.Check.ID)
				}
			}

			stored, _ := f.store.GetMonitor(context.Background(), m.ID)
			if stored.LastSnapshot.Title != "New title" {
				t.Errorf("snapshot not updated: %+v", stored.LastSnapshot)
			}
		})
	}
}

func TestRunCheckNotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp: connection refused")
	const url = "https://x.com/"
	f.site.setError(url, &opengraph.FetchError{Kind: opengraph.FetchNonHTML, URL: url, ContentType: "application/pdf"})
	m := f.addMonitor(t, url, true)
	m.NotifyTo = "owner@example.com"
	if err := f.store.UpdateMonitorSettings(context.Background(), m); err != nil {
		t.Fatalf("UpdateMonitorSettings() error = %v", err)
	}

	out, err := f.orch.RunCheck(context.Background(), m.ID, monitor.TriggerManual)
	if err != nil {
		t.Fatalf("RunCheck() error = %v, notification failures must not fail the check", err)
	}
	if len(out.Alerts) != 1 || len(f.alerts(t, m.ID)) != 1 {
		t.Errorf("alert not persisted despite notification failure")
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Destination != "owner@example.com" {
		t.Errorf("notifications = %+v, want one to owner@example.com", f.notifier.sent)
	}
	if f.notifier.sent[0].Check.ID != out.Check.ID || f.notifier.sent[0].Monitor.ID != m.ID {
		t.Errorf("notification does not carry monitor and check")
	}
}

func TestRunCheckErrors(t *testing.T) {
	t.Run("unknown monitor", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orch.RunCheck(context.Background(), "missing", monitor.TriggerManual)
		if !errors.Is(err, monitor.ErrMonitorNotFound) || !errors.Is(err, monitor.ErrNotFound) {
			t.Errorf("RunCheck() error = %v, want ErrMonitorNotFound", err)
		}
		if errors.Is(err, monitor.ErrUnavailable) {
			t.Errorf("not found must not look like an outage: %v", err)
		}
	})

	t.Run("datastore closed", func(t *testing.T) {
		f := newFixture(t)
		m := f.addMonitor(t, "https://x.com/", true)
		f.store.Close()
		_, err := f.orch.RunCheck(context.Background(), m.ID, monitor.TriggerManual)
		if !errors.Is(err, monitor.ErrUnavailable) {
			t.Errorf("RunCheck() error = %v, want ErrUnavailable", err)
		}
	})

	t.Run("lock backend down", func(t *testing.T) {
		f := newFixture(t)
		m := f.addMonitor(t, "https://x.com/", true)
		o := monitor.NewOrchestrator(monitor.Options{
			Store:   f.store,
			Fetcher: f.site,
			Locker:  failingLocker{err: errors.New("redis: connection refused")},
		})
		_, err := o.RunCheck(context.Background(), m.ID, monitor.TriggerManual)
		if !errors.Is(err, monitor.ErrUnavailable) {
			t.Errorf("RunCheck() error = %v, want ErrUnavailable", err)
		}
		if f.site.calls != 0 {
			t.Errorf("page fetched without holding the lock")
		}
	})

	t.Run("cancelled while locking", func(t *testing.T) {
		f := newFixture(t)
		m := f.addMonitor(t, "https://x.com/", true)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		o := monitor.NewOrchestrator(monitor.Options{
			Store:   f.store,
			Fetcher: f.site,
			Locker:  failingLocker{err: context.Canceled},
		})
		_, err := o.RunCheck(ctx, m.ID, monitor.TriggerManual)
		if !errors.Is(err, context.Canceled) || errors.Is(err, monitor.ErrUnavailable) {
			t.Errorf("RunCheck() error = %v, want context.Canceled only", err)
		}
	})

	t.Run("no datastore", func(t *testing.T) {
		o := monitor.NewOrchestrator(monitor.Options{Fetcher: newSite()})
		_, err := o.RunCheck(context.Background(), "any", monitor.TriggerManual)
		if !errors.Is(err, monitor.ErrUnavailable) {
			t.Errorf("RunCheck() error = %v, want ErrUnavailable", err)
		}
	})
}

func TestRunCheckSerializesSameMonitor(t *testing.T) {
	f := newFixture(t)
	const url, image = "https://x.com/", "https://x.com/i.png"
	f.site.setPage(url, ogPage("Title", "Desc.", image))
	f.site.setImage(image, opengraph.ValidImage("image/png"))
	m := f.addMonitor(t, url, true)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.orch.RunCheck(context.Background(), m.ID, monitor.TriggerManual); err != nil {
				t.Errorf("RunCheck() error = %v", err)
			}
		}()
	}
	wg.Wait()

	checks, _ := f.store.ListChecks(context.Background(), m.ID, 0)
	if len(checks) != 5 {
		t.Errorf("got %d checks, want 5", len(checks))
	}
	if alerts := f.alerts(t, m.ID); len(alerts) != 0 {
		t.Errorf("unchanged page raised alerts: %+v", alerts)
	}
}

func TestInspect(t *testing.T) {
	f := newFixture(t)
	const url = "https://x.com/home"
	f.site.setPage(url, `<html><head><title>Home</title></head><body>Hello</body></html>`)

	report, err := f.orch.Inspect(context.Background(), url)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if report.Meta.Title != "Home" || report.Status != validate.StatusBroken {
		t.Errorf("report = %+v", report)
	}
	for _, issue := range report.Issues {
		if issue.Field == validate.FieldTitle && issue.Platform == "" {
			t.Errorf("generic <title> should satisfy the title check: %+v", issue)
		}
	}
	if report.Counts[validate.SeverityError] != 1 {
		t.Errorf("Counts = %v, want one error", report.Counts)
	}
	if !strings.Contains(report.Tags, `property="og:title" content="Home"`) {
		t.Errorf("Tags = %s", report.Tags)
	}
	if f.site.calls != 1 {
		t.Errorf("fetch calls = %d", f.site.calls)
	}
	if monitors, _ := f.store.ListMonitors(context.Background(), ""); len(monitors) != 0 {
		t.Errorf("Inspect persisted monitors: %+v", monitors)
	}

	_, err = f.orch.Inspect(context.Background(), "https://x.com/missing")
	var fe *opengraph.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != 404 {
		t.Errorf("Inspect(missing) error = %v, want FetchError 404", err)
	}
}

// staticProbe reports the same status for every image, like a warm cache
type staticProbe struct{ status opengraph.ImageStatus }

func (p staticProbe) Check(context.Context, string) opengraph.ImageStatus { return p.status }

func TestScheduledCheckIgnoresInspectionCache(t *testing.T) {
	f := newFixture(t)
	const url, image = "https://x.com/post", "https://x.com/a.png"
	f.site.setPage(url, ogPage("Post", "About things.", image))
	f.site.setImage(image, opengraph.ValidImage("image/png"))
	m := f.addMonitor(t, url, true)

	f.orch = monitor.NewOrchestrator(monitor.Options{
		Store:        f.store,
		Fetcher:      f.site,
		Probe:        f.site,
		InspectProbe: staticProbe{status: opengraph.ValidImage("image/png")},
		Now:          func() time.Time { return testNow },
	})

	f.run(t, m.ID, monitor.TriggerScheduled)
	f.site.setImage(image, opengraph.InvalidImage(opengraph.ImageNotFound, "image returned HTTP 404"))

	out := f.run(t, m.ID, monitor.TriggerScheduled)
	if len(out.Changes) != 1 || out.Changes[0].Type != changes.ImageBroken {
		t.Errorf("Changes = %+v, want image_broken from the live probe", out.Changes)
	}

	report, err := f.orch.Inspect(context.Background(), url)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if report.Meta.ImageStatus == nil || !report.Meta.ImageStatus.Valid {
		t.Errorf("Inspect() image status = %+v, want the inspect probe's result", report.Meta.ImageStatus)
	}
}
