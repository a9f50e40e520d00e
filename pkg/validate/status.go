package validate

// Status is the overall health derived from a set of issues
type Status string

// Health states, from best to worst
const (
	StatusHealthy Status = "healthy"
	StatusWarning Status = "warning"
	StatusBroken  Status = "broken"
)

// DeriveStatus returns broken if any issue is an error, warning if any is a
// warning, and healthy otherwise. Info issues never affect the status.
func DeriveStatus(issues []Issue) Status {
	status := StatusHealthy
	for _, issue := range issues {
		switch issue.Type {
		case SeverityError:
			return StatusBroken
		case SeverityWarning:
			status = StatusWarning
		}
	}
	return status
}

// Counts tallies issues by severity
func Counts(issues []Issue) map[Severity]int {
	counts := map[Severity]int{SeverityError: 0, SeverityWarning: 0, SeverityInfo: 0}
	for _, issue := range issues {
		counts[issue.Type]++
	}
	return counts
}
