package feed

import (
	"fmt"
	"strings"

	"github.com/lepinkainen/og-monitor/pkg/monitor"
)

// ForMonitor returns a generator describing the alert feed of m. baseURL is
// the public address of the API and may be empty.
func ForMonitor(m *monitor.Monitor, baseURL string) *Generator {
	link := strings.TrimRight(baseURL, "/") + "/api/monitors/" + m.ID + "/alerts.atom"
	return NewGenerator(
		"Alerts for "+m.DisplayName(),
		"Social preview changes detected on "+m.URL,
		link,
		"og-monitor",
	)
}

// AlertItems converts alerts into feed items. Each entry is categorized by
// change type and acknowledgement state.
func AlertItems(m *monitor.Monitor, alerts []monitor.Alert) []Item {
	items := make([]Item, 0, len(alerts))
	for _, a := range alerts {
		state := "open"
		if a.Acknowledged {
			state = "acknowledged"
		}
		items = append(items, Item{
			Title:       fmt.Sprintf("%s: %s", m.DisplayName(), a.Message),
			Link:        m.URL,
			Description: describe(a),
			Author:      "og-monitor",
			Created:     a.CreatedAt,
			ID:          "urn:og-monitor:alert:" + a.ID,
			Categories:  []string{string(a.Type), state},
		})
	}
	return items
}

func describe(a monitor.Alert) string {
	var b strings.Builder
	b.WriteString(a.Message)
	if a.PreviousValue != nil {
		fmt.Fprintf(&b, "\nBefore: %s", *a.PreviousValue)
	}
	if a.CurrentValue != nil {
		fmt.Fprintf(&b, "\nNow: %s", *a.CurrentValue)
	}
	return b.String()
}
