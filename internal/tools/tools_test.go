package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFromLegacyMap(t *testing.T) {
	got := Normalize(nil, map[string]bool{"web_search": true, "deep_research": false}, AllVisible())
	assert.Equal(t, []ID{WebSearch}, got)
}

func TestNormalizeExplicitListIsAuthoritative(t *testing.T) {
	legacy := map[string]bool{"web_search": true}

	got := Normalize([]ID{}, legacy, AllVisible())
	assert.Empty(t, got)
	assert.NotNil(t, got)

	explicit := []ID{Canvas, WebSearch}
	once := Normalize(explicit, legacy, AllVisible())
	twice := Normalize(once, legacy, AllVisible())
	assert.Equal(t, explicit, once)
	assert.Equal(t, once, twice)
}

func TestNormalizeDropsUnknownAndHidden(t *testing.T) {
	legacy := map[string]bool{
		"web_search":    true,
		"code_analysis": true,
		"calculator":    true,
	}
	vis := Visibility{WebSearch: true, AgentMode: false}

	assert.Equal(t, []ID{WebSearch}, Normalize(nil, legacy, vis))
}

func TestLegacyTableIsConsistent(t *testing.T) {
	pairs := map[string]ID{
		"web_search":        WebSearch,
		"deep_research":     DeepResearch,
		"code_analysis":     AgentMode,
		"document_analysis": Canvas,
	}
	for key, id := range pairs {
		gotID, ok := FromLegacy(key)
		require.True(t, ok, key)
		assert.Equal(t, id, gotID)

		gotKey, ok := LegacyKey(id)
		require.True(t, ok, string(id))
		assert.Equal(t, key, gotKey)
	}

	_, ok := LegacyKey(ID("unknown"))
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	t.Run("modern callback wins", func(t *testing.T) {
		var removed ID
		var toggled string
		Remove(WebSearch, func(id ID) { removed = id }, func(k string) { toggled = k })
		assert.Equal(t, WebSearch, removed)
		assert.Empty(t, toggled)
	})

	t.Run("legacy fallback", func(t *testing.T) {
		var toggled string
		Remove(WebSearch, nil, func(k string) { toggled = k })
		assert.Equal(t, "web_search", toggled)
	})

	t.Run("no inverse mapping", func(t *testing.T) {
		called := false
		Remove(ID("custom"), nil, func(string) { called = true })
		assert.False(t, called)
	})
}

func TestToLegacyMapKeepsUnknownKeys(t *testing.T) {
	got := ToLegacyMap([]ID{AgentMode}, map[string]bool{"calculator": true, "web_search": true})
	assert.Equal(t, map[string]bool{
		"calculator":        true,
		"web_search":        false,
		"deep_research":     false,
		"code_analysis":     true,
		"document_analysis": false,
	}, got)
}

func TestSelectionToggle(t *testing.T) {
	vis := Visibility{WebSearch: true, DeepResearch: true}
	s := NewSelection(nil, map[string]bool{"deep_research": true, "calculator": true}, vis)

	assert.Equal(t, []ID{DeepResearch}, s.IDs())
	assert.True(t, s.Toggle(WebSearch))
	assert.False(t, s.Toggle(Canvas), "hidden tools cannot be armed")
	assert.Equal(t, []ID{DeepResearch, WebSearch}, s.IDs())

	assert.False(t, s.Toggle(DeepResearch))
	assert.Equal(t, []ID{WebSearch}, s.IDs())
	assert.True(t, s.LegacyMap()["calculator"])
	assert.True(t, s.LegacyMap()["web_search"])
}

func TestSelectionHidesStoredButInvisibleTools(t *testing.T) {
	s := NewSelection([]ID{Canvas, WebSearch}, nil, Visibility{WebSearch: true})
	assert.Equal(t, []ID{WebSearch}, s.IDs())
	assert.False(t, s.Enabled(Canvas))
}

func TestDescribeMarkdown(t *testing.T) {
	assert.Empty(t, DescribeMarkdown(nil))

	md := DescribeMarkdown([]ID{WebSearch, ID("nope")})
	assert.Contains(t, md, "## Available tools")
	assert.Contains(t, md, "`web_search`")
	assert.NotContains(t, md, "nope")
}

func TestVisibilitySource(t *testing.T) {
	t.Run("missing file shows everything", func(t *testing.T) {
		src := NewVisibilitySource(filepath.Join(t.TempDir(), "tools.yaml"))
		vis, err := src.Load()
		require.NoError(t, err)
		assert.Equal(t, AllVisible(), vis)
	})

	t.Run("file is read once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tools.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tools:\n  web-search: true\n  document_analysis: true\n  agent-mode: false\n  bogus: true\n"), 0o600))

		src := NewVisibilitySource(path)
		vis, err := src.Load()
		require.NoError(t, err)
		assert.Equal(t, Visibility{WebSearch: true, Canvas: true, AgentMode: false}, vis)

		require.NoError(t, os.WriteFile(path, []byte("tools:\n  deep-research: true\n"), 0o600))
		again, err := src.Load()
		require.NoError(t, err)
		assert.Equal(t, vis, again)
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tools.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tools: [unterminated"), 0o600))
		_, err := NewVisibilitySource(path).Load()
		assert.Error(t, err)
	})
}
