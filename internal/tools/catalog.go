package tools

import (
	"fmt"
	"strings"
)

// ID identifies an auxiliary capability that can be armed for the next
// submission.
type ID string

const (
	WebSearch    ID = "web-search"
	DeepResearch ID = "deep-research"
	AgentMode    ID = "agent-mode"
	Canvas       ID = "canvas"
)

type Tool struct {
	ID          ID
	LegacyKey   string
	Label       string
	Shortcut    string
	Description string
}

// Catalog lists every known tool in display order. Derived selections follow
// this order.
var Catalog = []Tool{
	{
		ID:          WebSearch,
		LegacyKey:   "web_search",
		Label:       "Web search",
		Shortcut:    "ctrl+w",
		Description: "Search the web for up-to-date information and cite the sources used.",
	},
	{
		ID:          DeepResearch,
		LegacyKey:   "deep_research",
		Label:       "Deep research",
		Shortcut:    "ctrl+d",
		Description: "Multi-step research with synthesis across several sources.",
	},
	{
		ID:          AgentMode,
		LegacyKey:   "code_analysis",
		Label:       "Agent mode",
		Shortcut:    "ctrl+a",
		Description: "Inspect the local workspace (list, read, glob and grep files) before answering.",
	},
	{
		ID:          Canvas,
		LegacyKey:   "document_analysis",
		Label:       "Canvas",
		Shortcut:    "ctrl+o",
		Description: "Work on long-form documents and answer in a structured, editable layout.",
	},
}

var (
	byID     = map[ID]Tool{}
	byLegacy = map[string]ID{}
)

func init() {
	for _, t := range Catalog {
		byID[t.ID] = t
		byLegacy[t.LegacyKey] = t.ID
	}
}

// Lookup returns the catalog entry for id.
func Lookup(id ID) (Tool, bool) {
	t, ok := byID[id]
	return t, ok
}

// FromLegacy maps a legacy settings key (web_search) to its modern id.
func FromLegacy(key string) (ID, bool) {
	id, ok := byLegacy[key]
	return id, ok
}

// LegacyKey maps a modern id back to its legacy settings key.
func LegacyKey(id ID) (string, bool) {
	t, ok := byID[id]
	if !ok {
		return "", false
	}
	return t.LegacyKey, true
}

// DescribeMarkdown renders the armed tools as a system prompt section.
// Returns "" when nothing is armed.
func DescribeMarkdown(ids []ID) string {
	var sb strings.Builder
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("## Available tools\n")
		}
		sb.WriteString(fmt.Sprintf("- **%s** (`%s`): %s\n", t.Label, t.LegacyKey, t.Description))
	}
	return sb.String()
}
