package advice

// GenericTip is returned for labels without a curated tip.
const GenericTip = "🪴 General Tip: Ensure proper watering, sunlight, and monitor regularly."

// HealthyAppleTip is the tip shown for Apple___healthy.
const HealthyAppleTip = "✅ Your plant looks healthy! Keep monitoring for changes."

var tips = map[string]string{
	"Apple___Apple_scab":          "💡 Tip: Prune your apple trees and apply fungicides early in the season.",
	"Apple___Black_rot":           "🛡️ Tip: Remove infected branches and clean up fallen debris.",
	"Apple___healthy":             HealthyAppleTip,
	"Corn_(maize)___Common_rust_": "🌽 Tip: Use resistant hybrids and rotate crops to prevent recurrence.",
	"Corn_(maize)___healthy":      "🎉 Looks good! Maintain optimal spacing and soil conditions.",
	"Grape___Black_rot":           "🍇 Tip: Apply fungicides during early growth and ensure proper air circulation.",
	"Grape___healthy":             "👏 Healthy vine! Just maintain regular inspection and pruning.",
}

// Table is a read-only label to tip mapping.
type Table struct {
	tips     map[string]string
	fallback string
}

// Default returns the curated table.
func Default() *Table {
	return &Table{tips: tips, fallback: GenericTip}
}

// New builds a table from a copy of m.
func New(m map[string]string, fallback string) *Table {
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return &Table{tips: c, fallback: fallback}
}

// GetOrDefault returns the tip for label, or the fallback tip.
func (t *Table) GetOrDefault(label string) string {
	if tip, ok := t.tips[label]; ok {
		return tip
	}
	return t.fallback
}

// Has reports whether label has a curated tip.
func (t *Table) Has(label string) bool {
	_, ok := t.tips[label]
	return ok
}

func (t *Table) Len() int { return len(t.tips) }
