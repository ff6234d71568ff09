package model

// ElementKind is the kind of a selectable element within its domain.
type ElementKind string

const (
	KindPosition         ElementKind = "position"
	KindAspect           ElementKind = "aspect"
	KindTransit          ElementKind = "transit"
	KindRelationshipItem ElementKind = "relationship-item"
)

// ContextElement is the canonical selectable unit: one piece of astrological
// data the user can attach to their next question. Key is derived
// deterministically from the underlying record and is unique within one
// candidate list. Payload is the transmit-ready subset sent upstream when the
// element is selected.
type ContextElement struct {
	Group       ContentType `json:"group"`
	Kind        ElementKind `json:"type"`
	Key         string      `json:"key"`
	Label       string      `json:"label"`
	Description string      `json:"description,omitempty"`
	// Section drives category filtering within a group: the relationship
	// source (synastry/composite/placement) or the transit kind.
	Section string `json:"section,omitempty"`
	Payload any    `json:"payload,omitempty"`
}
