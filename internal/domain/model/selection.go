package model

import "stellium-ask/internal/domain"

// MaxSelections caps how many context elements can ride along with one message.
const MaxSelections = 3

// Selection is the bounded, ordered set of elements chosen for the next
// message. It is mutated only through its methods.
type Selection struct {
	elements []ContextElement
}

// Toggle removes the element when one with the same key is already selected,
// otherwise appends it. A toggle against a full selection returns
// domain.ErrSelectionLimit and leaves the selection unchanged; the caller is
// expected to surface the rejection. The returned bool reports whether the
// element is selected after the call.
func (s *Selection) Toggle(el ContextElement) (bool, error) {
	for i, e := range s.elements {
		if e.Key == el.Key {
			s.elements = append(s.elements[:i], s.elements[i+1:]...)
			return false, nil
		}
	}
	if len(s.elements) >= MaxSelections {
		return false, domain.ErrSelectionLimit
	}
	s.elements = append(s.elements, el)
	return true, nil
}

// Remove drops the element with the given key, if present.
func (s *Selection) Remove(key string) {
	for i, e := range s.elements {
		if e.Key == key {
			s.elements = append(s.elements[:i], s.elements[i+1:]...)
			return
		}
	}
}

func (s *Selection) Clear() {
	s.elements = s.elements[:0]
}

func (s *Selection) Has(key string) bool {
	for _, e := range s.elements {
		if e.Key == key {
			return true
		}
	}
	return false
}

func (s *Selection) Len() int { return len(s.elements) }

func (s *Selection) Full() bool { return len(s.elements) >= MaxSelections }

// Elements returns a copy of the selected elements in selection order.
func (s *Selection) Elements() []ContextElement {
	out := make([]ContextElement, len(s.elements))
	copy(out, s.elements)
	return out
}
