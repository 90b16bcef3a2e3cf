package saptiva

import (
	"fmt"
	"os"
	"strings"

	"copilotos/internal/models"
)

const maxAttachmentLines = 500

// BuildFileContext inlines attached files below the user's text. Unreadable
// files are skipped.
func BuildFileContext(files []models.Attachment) string {
	if len(files) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n\n# Attached Files\n")

	for _, file := range files {
		content, err := os.ReadFile(file.Path)
		if err != nil {
			continue
		}

		text := string(content)
		lines := strings.Split(text, "\n")
		if len(lines) > maxAttachmentLines {
			text = strings.Join(lines[:maxAttachmentLines], "\n")
			text += fmt.Sprintf("\n\n[... truncated, %d more lines]", len(lines)-maxAttachmentLines)
		}

		sb.WriteString(fmt.Sprintf("\n## %s\n```\n%s\n```\n", file.Path, text))
	}

	return sb.String()
}
