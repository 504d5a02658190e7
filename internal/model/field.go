package model

// Provenance identifies which stage produced a field's current value.
type Provenance string

// Provenance values, ordered by precedence: unresolved < extracted < refined.
const (
	ProvenanceUnresolved Provenance = "unresolved"
	ProvenanceExtracted  Provenance = "extracted"
	ProvenanceRefined    Provenance = "refined"
)

// Field is a tagged draft value. Raw keeps the source text for audit even when
// the value could not be resolved.
type Field[T any] struct {
	Value      T          `json:"value"`
	Provenance Provenance `json:"provenance"`
	Raw        string     `json:"raw,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
}

// Unresolved returns an unresolved field that retains raw for audit.
func Unresolved[T any](raw string) Field[T] {
	return Field[T]{Provenance: ProvenanceUnresolved, Raw: raw}
}

// Extracted returns a field resolved by the entity extractor.
func Extracted[T any](v T, raw string, confidence float64) Field[T] {
	return Field[T]{Value: v, Provenance: ProvenanceExtracted, Raw: raw, Confidence: confidence}
}

// Refined returns a field resolved by the refinement pass.
func Refined[T any](v T, raw string) Field[T] {
	return Field[T]{Value: v, Provenance: ProvenanceRefined, Raw: raw}
}

// Resolved reports whether the field holds a usable value.
func (f Field[T]) Resolved() bool {
	return f.Provenance == ProvenanceExtracted || f.Provenance == ProvenanceRefined
}

// Get returns the value and whether it is resolved.
func (f Field[T]) Get() (T, bool) {
	if !f.Resolved() {
		var zero T
		return zero, false
	}
	return f.Value, true
}
