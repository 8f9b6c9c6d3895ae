package alerts

// Alert severity tiers.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// severityByType is the fixed classification table. Confidence never moves
// a detection between tiers; it only gates whether an alert exists at all.
var severityByType = map[string]string{
	"weapon": SeverityCritical,
	"gun":    SeverityCritical,
	"knife":  SeverityCritical,
	"fire":   SeverityCritical,

	"accident": SeverityHigh,
	"fight":    SeverityHigh,
	"violence": SeverityHigh,

	"crowd":               SeverityMedium,
	"abandoned_vehicle":   SeverityMedium,
	"suspicious_activity": SeverityMedium,
}

// SeverityFor maps a canonical detection type to its alert severity.
// Unlisted types default to low.
func SeverityFor(detectionType string) string {
	if s, ok := severityByType[detectionType]; ok {
		return s
	}
	return SeverityLow
}
