package tools

import "slices"

// Selection is the set of tools armed for the next submission. It keeps the
// ordered modern list as the source of truth and remembers legacy keys it
// does not understand so they survive a save.
type Selection struct {
	ids   []ID
	extra map[string]bool
	vis   Visibility
}

// NewSelection builds a selection from whatever was persisted. Pass a nil
// explicit list when only the legacy map is known.
func NewSelection(explicit []ID, legacy map[string]bool, vis Visibility) *Selection {
	if vis == nil {
		vis = AllVisible()
	}
	extra := map[string]bool{}
	for k, v := range legacy {
		if _, known := byLegacy[k]; !known {
			extra[k] = v
		}
	}
	return &Selection{
		ids:   Effective(Normalize(explicit, legacy, vis), vis),
		extra: extra,
		vis:   vis,
	}
}

// IDs returns the armed tools in selection order.
func (s *Selection) IDs() []ID {
	return slices.Clone(s.ids)
}

func (s *Selection) Enabled(id ID) bool {
	return slices.Contains(s.ids, id)
}

// Toggle arms or disarms id. Hidden and unknown ids cannot be armed.
// It reports whether id is armed afterwards.
func (s *Selection) Toggle(id ID) bool {
	if s.Enabled(id) {
		s.Remove(id)
		return false
	}
	if _, known := byID[id]; !known || !s.vis.Visible(id) {
		return false
	}
	s.ids = append(s.ids, id)
	return true
}

func (s *Selection) Remove(id ID) {
	s.ids = slices.DeleteFunc(s.ids, func(x ID) bool { return x == id })
}

// LegacyMap returns the storage representation, including unknown keys that
// were loaded with the selection.
func (s *Selection) LegacyMap() map[string]bool {
	return ToLegacyMap(s.ids, s.extra)
}
