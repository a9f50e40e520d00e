package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lepinkainen/og-monitor/internal/lock"
	"github.com/lepinkainen/og-monitor/internal/metrics"
	"github.com/lepinkainen/og-monitor/pkg/changes"
	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

// ErrMonitorNotFound is returned when a check is requested for an unknown monitor
var ErrMonitorNotFound = fmt.Errorf("monitor %w", ErrNotFound)

// Trigger identifies what started a check
type Trigger string

// Check triggers
const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Policy returns the alerting policy for checks started by t
func (t Trigger) Policy() changes.Policy {
	if t == TriggerScheduled {
		return changes.PolicyBreakingOnly
	}
	return changes.PolicyStrict
}

// State is a step of a single check run
type State string

// Check run states
const (
	StateFetching   State = "fetching"
	StateExtracting State = "extracting"
	StateValidating State = "validating"
	StateDiffing    State = "diffing"
	StatePersisting State = "persisting"
	StateAlerting   State = "alerting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// PageFetcher downloads a page
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*opengraph.Page, error)
}

// MetaExtractor turns downloaded HTML into metadata
type MetaExtractor interface {
	Extract(html, finalURL string) opengraph.MetaData
}

// Options configures an Orchestrator. Store is required for RunCheck, every
// other field has a default.
type Options struct {
	Store     Store
	Fetcher   PageFetcher
	Extractor MetaExtractor
	Probe     opengraph.ImageProbe
	// InspectProbe serves one-off inspections, usually a cached probe.
	// Monitor checks always use Probe so a broken image is seen on the next run.
	InspectProbe opengraph.ImageProbe
	Validator    *validate.Validator
	Locker       Locker
	Notifier     Notifier
	// Destination receives notifications for monitors without NotifyTo
	Destination string
	Now         func() time.Time
}

// Orchestrator runs checks for monitors and records their outcome
type Orchestrator struct {
	store        Store
	fetcher      PageFetcher
	extractor    MetaExtractor
	probe        opengraph.ImageProbe
	inspectProbe opengraph.ImageProbe
	validator    *validate.Validator
	locker       Locker
	notifier     Notifier
	destination  string
	now          func() time.Time
}

// Outcome is everything a single check produced
type Outcome struct {
	Monitor Monitor             `json:"monitor"`
	Check   Check               `json:"check"`
	Issues  []validate.Issue    `json:"issues"`
	Changes []changes.Change    `json:"changes"`
	Alerts  []Alert             `json:"alerts"`
	Meta    *opengraph.MetaData `json:"meta,omitempty"`
}

// NewOrchestrator fills in defaults for unset options
func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:        opts.Store,
		fetcher:      opts.Fetcher,
		extractor:    opts.Extractor,
		probe:        opts.Probe,
		inspectProbe: opts.InspectProbe,
		validator:    opts.Validator,
		locker:       opts.Locker,
		notifier:     opts.Notifier,
		destination:  opts.Destination,
		now:          opts.Now,
	}
	if o.fetcher == nil {
		o.fetcher = opengraph.NewFetcher(nil)
	}
	if o.extractor == nil {
		o.extractor = opengraph.NewExtractor()
	}
	if o.probe == nil {
		o.probe = opengraph.NewHTTPImageProbe(opengraph.DefaultImageTimeout, nil)
	}
	if o.inspectProbe == nil {
		o.inspectProbe = o.probe
	}
	if o.validator == nil {
		o.validator = validate.New(nil)
	}
	if o.locker == nil {
		o.locker = lock.NewKeyedMutex()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Store returns the datastore the orchestrator writes to
func (o *Orchestrator) Store() Store {
	return o.store
}

// Now returns the orchestrator's current time
func (o *Orchestrator) Now() time.Time {
	return o.now()
}

// RunCheck fetches, validates and diffs the monitor's page and persists the
// result. Fetch failures are recorded as a broken check and never returned;
// returned errors wrap ErrMonitorNotFound, ErrUnavailable (datastore or lock
// backend) or the context error.
func (o *Orchestrator) RunCheck(ctx context.Context, monitorID string, trigger Trigger) (*Outcome, error) {
	if o.store == nil {
		return nil, fmt.Errorf("%w: no datastore configured", ErrUnavailable)
	}

	started := time.Now()
	defer func() {
		metrics.CheckDuration.Observe(time.Since(started).Seconds())
	}()

	unlock, err := o.locker.Lock(ctx, "monitor:"+monitorID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("check of monitor %s cancelled: %w", monitorID, ctxErr)
		}
		return nil, fmt.Errorf("failed to lock monitor %s: %w: %w", monitorID, ErrUnavailable, err)
	}
	defer unlock()

	// Re-read under the lock so the diff runs against the latest completed check
	m, err := o.store.GetMonitor(ctx, monitorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMonitorNotFound, monitorID)
		}
		return nil, storageError("load monitor", err)
	}

	log := slog.With("monitor", m.ID, "url", m.URL, "trigger", trigger)
	state := func(s State) { log.Debug("Check state", "state", s) }

	state(StateFetching)
	page, err := o.fetcher.Fetch(ctx, m.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("check of monitor %s cancelled: %w", m.ID, ctxErr)
		}
		state(StateFailed)
		return o.recordFailure(ctx, log, m, trigger, err)
	}

	state(StateExtracting)
	meta := o.extractor.Extract(page.HTML, page.FinalURL)
	meta = opengraph.ProbeImages(ctx, o.probe, meta)

	state(StateValidating)
	issues := o.validator.Validate(meta)

	state(StateDiffing)
	snapshot := meta.Snapshot()
	detected := changes.Detect(m.LastSnapshot, snapshot, trigger.Policy())

	state(StatePersisting)
	now := o.now()
	check := newCheck(m.ID, issues, &meta, now)
	if err := o.store.CreateCheck(ctx, check); err != nil {
		return nil, storageError("save check", err)
	}
	if err := o.store.UpdateMonitorState(ctx, m.ID, check.Status, now, &snapshot); err != nil {
		return nil, storageError("update monitor", err)
	}
	m.Status = check.Status
	m.LastCheckedAt = &now
	m.LastSnapshot = &snapshot
	m.UpdatedAt = now

	state(StateAlerting)
	var alerts []Alert
	if m.AlertsEnabled {
		alerts, err = o.raiseAlerts(ctx, m, check, detected)
		if err != nil {
			return nil, err
		}
	}

	metrics.ChecksTotal.WithLabelValues(string(trigger), string(check.Status)).Inc()
	state(StateDone)
	log.Info("Check completed", "status", check.Status, "issues", len(issues), "changes", len(detected), "alerts", len(alerts))

	return &Outcome{
		Monitor: *m,
		Check:   *check,
		Issues:  issues,
		Changes: detected,
		Alerts:  alerts,
		Meta:    &meta,
	}, nil
}

// recordFailure persists a broken check for a page that could not be fetched.
// Only the transition into broken raises an alert.
func (o *Orchestrator) recordFailure(ctx context.Context, log *slog.Logger, m *Monitor, trigger Trigger, fetchErr error) (*Outcome, error) {
	kind := opengraph.FetchNetwork
	var fe *opengraph.FetchError
	if errors.As(fetchErr, &fe) {
		kind = fe.Kind
	}
	metrics.FetchErrorsTotal.WithLabelValues(string(kind)).Inc()
	log.Warn("Failed to fetch monitored page", "kind", kind, "error", fetchErr)

	issues := []validate.Issue{{
		Type:       validate.SeverityError,
		Message:    "Failed to fetch page: " + fetchErr.Error(),
		Field:      validate.FieldURL,
		Suggestion: "Make sure the URL is publicly reachable and returns an HTML page",
	}}

	previous := m.Status
	now := o.now()
	check := newCheck(m.ID, issues, nil, now)
	if err := o.store.CreateCheck(ctx, check); err != nil {
		return nil, storageError("save check", err)
	}
	if err := o.store.UpdateMonitorState(ctx, m.ID, check.Status, now, nil); err != nil {
		return nil, storageError("update monitor", err)
	}
	m.Status = check.Status
	m.LastCheckedAt = &now
	m.UpdatedAt = now

	var alerts []Alert
	if m.AlertsEnabled && previous != validate.StatusBroken {
		change := changes.New(changes.StatusError, "", fetchErr.Error())
		if previous != "" {
			prev := string(previous)
			change.PreviousValue = &prev
		}
		var err error
		alerts, err = o.raiseAlerts(ctx, m, check, []changes.Change{change})
		if err != nil {
			return nil, err
		}
	}

	metrics.ChecksTotal.WithLabelValues(string(trigger), string(check.Status)).Inc()

	return &Outcome{
		Monitor: *m,
		Check:   *check,
		Issues:  issues,
		Changes: []changes.Change{},
		Alerts:  alerts,
	}, nil
}

// raiseAlerts persists one alert per change and then notifies. Delivery
// failures are logged and never undo the persisted alerts.
func (o *Orchestrator) raiseAlerts(ctx context.Context, m *Monitor, check *Check, detected []changes.Change) ([]Alert, error) {
	alerts := make([]Alert, 0, len(detected))
	for _, change := range detected {
		alert := newAlert(m.ID, check.ID, change, check.CheckedAt)
		if err := o.store.CreateAlert(ctx, alert); err != nil {
			return nil, storageError("save alert", err)
		}
		metrics.AlertsCreatedTotal.WithLabelValues(string(alert.Type)).Inc()
		alerts = append(alerts, *alert)
	}

	if o.notifier == nil {
		return alerts, nil
	}

	destination := m.NotifyTo
	if destination == "" {
		destination = o.destination
	}
	for _, alert := range alerts {
		n := Notification{Destination: destination, Monitor: *m, Check: *check, Alert: alert}
		if err := o.notifier.Notify(ctx, n); err != nil {
			slog.Warn("Failed to deliver alert notification", "monitor", m.ID, "alert", alert.ID, "type", alert.Type, "error", err)
		}
	}
	return alerts, nil
}

// storageError marks err as a datastore failure so callers can tell it apart
// from an unreachable target page
func storageError(op string, err error) error {
	if errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, ErrUnavailable, err)
}
