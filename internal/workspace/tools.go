// Package workspace exposes read-only file inspection to the model when
// agent mode is armed.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
)

const (
	DefaultReadLines = 200
	MaxGrepHits      = 30
	MaxGrepPerFile   = 5
)

var errStop = errors.New("stop walk")

var Definitions = []openai.ChatCompletionToolUnionParam{
	openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        "read",
		Description: openai.String("Read file with line numbers (file path, not directory)"),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]interface{}{
				"path":   map[string]interface{}{"type": "string"},
				"offset": map[string]interface{}{"type": "integer"},
				"limit":  map[string]interface{}{"type": "integer"},
			},
			"required": []string{"path"},
		},
	}),
	openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        "glob",
		Description: openai.String("Find files by pattern, sorted by mtime"),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]interface{}{
				"pat":  map[string]interface{}{"type": "string"},
				"path": map[string]interface{}{"type": "string"},
			},
			"required": []string{"pat"},
		},
	}),
	openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        "grep",
		Description: openai.String("Search files for regex pattern"),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]interface{}{
				"pat":  map[string]interface{}{"type": "string"},
				"path": map[string]interface{}{"type": "string"},
			},
			"required": []string{"pat"},
		},
	}),
	openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        "ls",
		Description: openai.String("List files and directories in a path (defaults to current directory)"),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{"type": "string"},
			},
			"required": []string{},
		},
	}),
}

// Inspector runs the inspection tools relative to a root directory. Paths
// that escape the root are rejected.
type Inspector struct {
	Root string
}

func NewInspector(root string) *Inspector {
	return &Inspector{Root: root}
}

func (in *Inspector) Execute(name string, argsJSON string) (string, error) {
	args := map[string]interface{}{}
	if strings.TrimSpace(argsJSON) != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("decode %s arguments: %w", name, err)
		}
	}

	switch name {
	case "read":
		return in.read(args)
	case "glob":
		return in.glob(args)
	case "grep":
		return in.grep(args)
	case "ls":
		return in.ls(args)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

func (in *Inspector) resolve(p string) (string, error) {
	if p == "" {
		p = "."
	}
	root, err := filepath.Abs(in.Root)
	if err != nil {
		return "", err
	}
	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, p)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", p)
	}
	return full, nil
}

func (in *Inspector) read(args map[string]interface{}) (string, error) {
	path, _ := args["path"].(string)
	offset, _ := args["offset"].(float64)
	limit, _ := args["limit"].(float64)

	full, err := in.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(data), "\n")
	start := int(offset)
	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		start = len(lines)
	}
	n := int(limit)
	if n <= 0 {
		n = DefaultReadLines
	}
	end := start + n
	if end > len(lines) {
		end = len(lines)
	}

	var sb strings.Builder
	for i, line := range lines[start:end] {
		sb.WriteString(fmt.Sprintf("%4d| %s\n", start+i+1, line))
	}
	if end < len(lines) {
		sb.WriteString(fmt.Sprintf("[... %d more lines, use offset=%d]\n", len(lines)-end, end))
	}
	return sb.String(), nil
}

func (in *Inspector) glob(args map[string]interface{}) (string, error) {
	pat, _ := args["pat"].(string)
	root, _ := args["path"].(string)

	dir, err := in.resolve(root)
	if err != nil {
		return "", err
	}
	matches, err := filepath.Glob(filepath.Join(dir, pat))
	if err != nil {
		return "", err
	}

	type fileInfo struct {
		path  string
		mtime time.Time
	}
	infos := make([]fileInfo, 0, len(matches))
	for _, m := range matches {
		// Patterns with ".." can match outside the root.
		if _, err := in.resolve(m); err != nil {
			continue
		}
		fi := fileInfo{path: m}
		if stat, err := os.Stat(m); err == nil {
			fi.mtime = stat.ModTime()
		}
		infos = append(infos, fi)
	}
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].mtime.After(infos[j].mtime)
	})

	if len(infos) == 0 {
		return "none", nil
	}
	result := make([]string, 0, len(infos))
	for _, info := range infos {
		result = append(result, in.rel(info.path))
	}
	return strings.Join(result, "\n"), nil
}

func (in *Inspector) grep(args map[string]interface{}) (string, error) {
	pat, _ := args["pat"].(string)
	root, _ := args["path"].(string)

	re, err := regexp.Compile(pat)
	if err != nil {
		return "", err
	}
	dir, err := in.resolve(root)
	if err != nil {
		return "", err
	}

	var hits []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		perFile := 0
		for i, line := range strings.Split(string(data), "\n") {
			if !re.MatchString(line) {
				continue
			}
			hits = append(hits, fmt.Sprintf("%s:%d:%s", in.rel(path), i+1, strings.TrimSpace(line)))
			perFile++
			if len(hits) >= MaxGrepHits {
				return errStop
			}
			if perFile >= MaxGrepPerFile {
				break
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return "", err
	}

	if len(hits) == 0 {
		return "none", nil
	}
	return strings.Join(hits, "\n"), nil
}

func (in *Inspector) ls(args map[string]interface{}) (string, error) {
	path, _ := args["path"].(string)
	dir, err := in.resolve(path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, entry := range entries {
		prefix := "[FILE]"
		name := entry.Name()
		if entry.IsDir() {
			prefix = "[DIR] "
			name += "/"
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", prefix, name))
	}

	if sb.Len() == 0 {
		return "(empty directory)", nil
	}
	return sb.String(), nil
}

func (in *Inspector) rel(path string) string {
	root, err := filepath.Abs(in.Root)
	if err != nil {
		return path
	}
	if r, err := filepath.Rel(root, path); err == nil {
		return r
	}
	return path
}

// Summary is the one-line description shown under the assistant label while
// the model inspects the workspace.
func Summary(name string, argsJSON string, result string) string {
	var args map[string]interface{}
	_ = json.Unmarshal([]byte(argsJSON), &args)

	count := func() int {
		if result == "none" || result == "(empty directory)" || result == "" {
			return 0
		}
		return strings.Count(strings.TrimRight(result, "\n"), "\n") + 1
	}

	switch name {
	case "read":
		path, _ := args["path"].(string)
		return fmt.Sprintf("READ %s (%d lines)", filepath.Base(path), count())
	case "glob":
		pat, _ := args["pat"].(string)
		return fmt.Sprintf("GLOB %s (%d files)", pat, count())
	case "grep":
		pat, _ := args["pat"].(string)
		return fmt.Sprintf("GREP \"%s\" (%d matches)", pat, count())
	case "ls":
		path, _ := args["path"].(string)
		if path == "" {
			path = "."
		}
		return fmt.Sprintf("LS %s (%d entries)", path, count())
	default:
		return fmt.Sprintf("%s called", strings.ToUpper(name))
	}
}
