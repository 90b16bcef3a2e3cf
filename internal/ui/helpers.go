package ui

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/mattn/go-runewidth"

	"copilotos/internal/conversation"
	"copilotos/internal/models"
)

const maxSuggestions = 10

var (
	mentionRE    = regexp.MustCompile(`@("([^"]+)"|([^\s]+))`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// GetFileSuggestions lists paths under the working directory matching the
// text typed after @. A prefix with a slash completes inside that directory;
// anything else searches file names recursively.
func GetFileSuggestions(prefix string) []string {
	cwd, err := os.Getwd()
	if err != nil {
		return nil
	}
	if strings.Contains(prefix, "/") {
		return directorySuggestions(cwd, prefix)
	}
	return recursiveSuggestions(cwd, prefix)
}

func directorySuggestions(cwd, prefix string) []string {
	idx := strings.LastIndex(prefix, "/")
	dir, filePrefix := prefix[:idx+1], strings.ToLower(prefix[idx+1:])

	entries, err := os.ReadDir(filepath.Join(cwd, dir))
	if err != nil {
		return nil
	}

	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(filePrefix, ".") {
			continue
		}
		if strings.HasPrefix(strings.ToLower(name), filePrefix) {
			out = append(out, dir+name)
		}
	}
	return rankSuggestions(cwd, out)
}

func recursiveSuggestions(cwd, prefix string) []string {
	needle := strings.ToLower(prefix)
	var out []string

	_ = filepath.WalkDir(cwd, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != cwd && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			return nil
		}
		if strings.Contains(strings.ToLower(name), needle) {
			rel, _ := filepath.Rel(cwd, path)
			out = append(out, rel)
		}
		if len(out) >= 2*maxSuggestions {
			return filepath.SkipAll
		}
		return nil
	})
	return rankSuggestions(cwd, out)
}

// rankSuggestions puts directories first, then shallower paths, then names.
func rankSuggestions(cwd string, paths []string) []string {
	isDir := func(p string) bool {
		info, err := os.Stat(filepath.Join(cwd, p))
		return err == nil && info.IsDir()
	}
	sort.SliceStable(paths, func(i, j int) bool {
		di, dj := isDir(paths[i]), isDir(paths[j])
		if di != dj {
			return di
		}
		ci, cj := strings.Count(paths[i], "/"), strings.Count(paths[j], "/")
		if ci != cj {
			return ci < cj
		}
		return strings.ToLower(paths[i]) < strings.ToLower(paths[j])
	})
	if len(paths) > maxSuggestions {
		paths = paths[:maxSuggestions]
	}
	return paths
}

// ExtractFileMentions removes @path mentions of existing files from input and
// returns them separately. Mentions of missing files stay in the text.
func ExtractFileMentions(input string) (cleanInput string, files []string) {
	seen := map[string]bool{}
	cleanInput = mentionRE.ReplaceAllStringFunc(input, func(mention string) string {
		match := mentionRE.FindStringSubmatch(mention)
		name := match[3]
		if match[2] != "" {
			name = match[2]
		}
		if _, err := os.Stat(name); err != nil {
			return mention
		}
		if !seen[name] {
			seen[name] = true
			files = append(files, name)
		}
		return ""
	})
	cleanInput = strings.TrimSpace(whitespaceRE.ReplaceAllString(cleanInput, " "))
	return cleanInput, files
}

// GetAtPosition finds the @ mention being typed at the cursor
func GetAtPosition(input string, cursorPos int) (prefix string, startPos int, found bool) {
	if cursorPos > len(input) {
		cursorPos = len(input)
	}
	for i := cursorPos - 1; i >= 0; i-- {
		switch input[i] {
		case '@':
			return input[i+1 : cursorPos], i, true
		case ' ', '\n', '\t':
			return "", 0, false
		}
	}
	return "", 0, false
}

func TextareaCursorIndex(t textarea.Model) int {
	li := t.LineInfo()
	return cursorIndexFromRowCol(t.Value(), t.Line(), li.StartColumn+li.ColumnOffset)
}

func TextareaCursorFromIndex(value string, index int) (row int, col int) {
	index = max(0, min(index, len(value)))

	lines := strings.Split(value, "\n")
	pos := 0
	for i, line := range lines {
		if index <= pos+len(line) {
			return i, runeIndexForByteIndex(line, index-pos)
		}
		pos += len(line) + 1
	}
	row = len(lines) - 1
	return row, utf8.RuneCountInString(lines[row])
}

func SetTextareaCursor(t *textarea.Model, row int, col int) {
	lineCount := t.LineCount()
	if lineCount == 0 {
		t.SetCursor(0)
		return
	}
	row = max(0, min(row, lineCount-1))

	for i := 0; i < 10000 && t.Line() > row; i++ {
		t.CursorUp()
	}
	for i := 0; i < 10000 && t.Line() < row; i++ {
		t.CursorDown()
	}
	t.SetCursor(col)
}

func cursorIndexFromRowCol(value string, row int, col int) int {
	lines := strings.Split(value, "\n")
	row = max(0, min(row, len(lines)-1))

	index := 0
	for i := 0; i < row; i++ {
		index += len(lines[i]) + 1
	}
	return index + byteIndexForRuneColumn(lines[row], col)
}

func byteIndexForRuneColumn(s string, col int) int {
	count := 0
	for i := range s {
		if count >= col {
			return i
		}
		count++
	}
	return len(s)
}

func runeIndexForByteIndex(s string, idx int) int {
	count := 0
	for i := range s {
		if i >= idx {
			return count
		}
		count++
	}
	return count
}

// WrappedLineCount is the number of terminal rows value occupies at width.
func WrappedLineCount(value string, width int) int {
	if width <= 0 {
		return 1
	}
	count := 0
	for _, line := range strings.Split(value, "\n") {
		w := runewidth.StringWidth(line)
		if w == 0 {
			count++
			continue
		}
		count += (w-1)/width + 1
	}
	return count
}

// PromptPreview flattens a prompt to one line for the history list.
func PromptPreview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	const maxRunes = 500
	if r := []rune(s); len(r) > maxRunes {
		return string(r[:maxRunes])
	}
	return s
}

func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

// RelativeTime renders how long ago t was, seen from now.
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = -d
	}
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "min")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hr")
	case d < 14*24*time.Hour:
		return plural(int(d.Hours()/24), "day")
	default:
		return plural(int(d.Hours()/24/7), "week")
	}
}

func FindModelByID(id string) (models.AIModel, int, bool) {
	for i, mdl := range AvailableModels {
		if mdl.ID == id {
			return mdl, i, true
		}
	}
	return models.AIModel{}, 0, false
}

// SyncModelViewportScroll keeps the highlighted model visible. The list is
// one provider header followed by one row per model.
func (m *Model) SyncModelViewportScroll() {
	row := m.SelectedModelIndex + 1
	if row == 1 {
		m.ModelViewport.SetYOffset(0)
		return
	}
	if row+1 > m.ModelViewport.YOffset+m.ModelViewport.Height {
		m.ModelViewport.SetYOffset(row + 1 - m.ModelViewport.Height)
	}
	if row < m.ModelViewport.YOffset {
		m.ModelViewport.SetYOffset(row)
	}
}

// RecoverInterrupted fixes messages stored while a request was still
// running when the application exited. Unanswered user turns count as
// delivered; half-written replies become retryable errors.
func RecoverInterrupted(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		switch out[i].Status {
		case models.StatusSending:
			out[i].Status = models.StatusDelivered
		case models.StatusStreaming:
			out[i].Status = models.StatusError
			out[i].IsError = true
			if strings.TrimSpace(out[i].Content) == "" {
				out[i].Content = conversation.FallbackErrorText
			}
		}
	}
	return out
}

// sameStored reports whether b would write the same row as a.
func sameStored(a, b models.Message) bool {
	if a.Content != b.Content || a.Status != b.Status || a.IsError != b.IsError ||
		a.Model != b.Model || a.Tokens != b.Tokens || a.Latency != b.Latency {
		return false
	}
	switch {
	case a.File == nil && b.File == nil:
		return true
	case a.File == nil || b.File == nil:
		return false
	default:
		return *a.File == *b.File
	}
}
