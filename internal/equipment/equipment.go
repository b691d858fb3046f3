// Package equipment maps recognized labels and structured equipment tags to
// canonical equipment classification codes.
package equipment

// Category is the fixed set of equipment families
type Category string

const (
	CategoryPump          Category = "pump"
	CategoryFan           Category = "fan"
	CategoryValve         Category = "valve"
	CategoryDamper        Category = "damper"
	CategorySensor        Category = "sensor"
	CategoryHeatExchanger Category = "heat_exchanger"
	CategoryFilter        Category = "filter"
	CategoryMotor         Category = "motor"
	CategoryCompressor    Category = "compressor"
	CategoryOther         Category = "other"
)

// BoundingBox is a region in normalized 0..1 image coordinates
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the box lies inside the unit square
func (b BoundingBox) Valid() bool {
	return b.X >= 0 && b.Y >= 0 && b.Width > 0 && b.Height > 0 &&
		b.X+b.Width <= 1 && b.Y+b.Height <= 1
}

// Definition is a canonical code with its display name and category
type Definition struct {
	Code     string   `json:"code" yaml:"code"`
	Name     string   `json:"name" yaml:"name"`
	Category Category `json:"category" yaml:"category"`
}

// Match is one classification result. SourceRegion is nil for whole-image
// classification.
type Match struct {
	Code         string       `json:"code"`
	Name         string       `json:"name"`
	Category     Category     `json:"category"`
	Confidence   float64      `json:"confidence"`
	SourceRegion *BoundingBox `json:"source_region,omitempty"`
}

// NewMatch builds a match from a definition
func NewMatch(def Definition, confidence float64) Match {
	return Match{
		Code:       def.Code,
		Name:       def.Name,
		Category:   def.Category,
		Confidence: confidence,
	}
}

// WithRegion returns a copy of m tagged with region
func (m Match) WithRegion(region BoundingBox) Match {
	r := region
	m.SourceRegion = &r
	return m
}
