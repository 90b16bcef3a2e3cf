package tools

// Visibility maps a tool id to whether it may be offered. Ids absent from the
// map are hidden.
type Visibility map[ID]bool

// AllVisible is the built-in visibility used when no tools file exists.
func AllVisible() Visibility {
	v := make(Visibility, len(Catalog))
	for _, t := range Catalog {
		v[t.ID] = true
	}
	return v
}

func (v Visibility) Visible(id ID) bool {
	return v[id]
}

// Normalize reconciles the two stored representations of the armed tools.
//
// A non-nil explicit list is authoritative and returned as given, in order;
// an empty list means nothing is armed. A nil list defers to the legacy map:
// enabled keys are translated through the catalog, and unknown or hidden ids
// are dropped.
func Normalize(explicit []ID, legacy map[string]bool, vis Visibility) []ID {
	if explicit != nil {
		out := make([]ID, len(explicit))
		copy(out, explicit)
		return out
	}

	out := []ID{}
	for _, t := range Catalog {
		if !legacy[t.LegacyKey] {
			continue
		}
		if !vis.Visible(t.ID) {
			continue
		}
		out = append(out, t.ID)
	}
	return out
}

// Effective filters a selection down to the ids that may actually be used.
func Effective(selected []ID, vis Visibility) []ID {
	out := make([]ID, 0, len(selected))
	for _, id := range selected {
		if _, known := byID[id]; !known || !vis.Visible(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// ToLegacyMap converts a modern selection into the legacy storage shape.
// Keys in base that have no modern counterpart are carried over untouched.
func ToLegacyMap(selected []ID, base map[string]bool) map[string]bool {
	out := make(map[string]bool, len(base)+len(Catalog))
	for k, v := range base {
		if _, known := byLegacy[k]; !known {
			out[k] = v
		}
	}
	for _, t := range Catalog {
		out[t.LegacyKey] = false
	}
	for _, id := range selected {
		if key, ok := LegacyKey(id); ok {
			out[key] = true
		}
	}
	return out
}

// Remove disarms id. The modern callback wins when supplied; otherwise the id
// is translated back to its legacy key for the legacy toggle. Ids without a
// legacy key are ignored.
func Remove(id ID, onRemove func(ID), onToggleLegacy func(string)) {
	if onRemove != nil {
		onRemove(id)
		return
	}
	key, ok := LegacyKey(id)
	if !ok || onToggleLegacy == nil {
		return
	}
	onToggleLegacy(key)
}
