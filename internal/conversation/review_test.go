package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilotos/internal/models"
)

func TestSelectViewMode(t *testing.T) {
	cases := []struct {
		count     int
		loading   bool
		submitted bool
		want      ViewMode
	}{
		{0, false, false, ViewHero},
		{1, false, false, ViewConversation},
		{0, true, false, ViewConversation},
		{0, false, true, ViewConversation},
		{3, true, true, ViewConversation},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SelectViewMode(tc.count, tc.loading, tc.submitted),
			"count=%d loading=%v submitted=%v", tc.count, tc.loading, tc.submitted)
	}
}

func TestPatternDetector(t *testing.T) {
	cases := map[string]ReviewCommand{
		"resume el documento":            {true, ReviewSummarize},
		"Resúmeme el PDF":                {true, ReviewSummarize},
		"summarize the attached file":    {true, ReviewSummarize},
		"revisa el archivo":              {true, ReviewFull},
		"haz una revisión del documento": {true, ReviewFull},
		"please review this document":    {true, ReviewFull},
		"hola, ¿qué tal?":                {false, ReviewNone},
		"give me a summary of the news":  {false, ReviewNone},
		"the document is great":          {false, ReviewNone},
		"":                               {false, ReviewNone},
	}
	d := PatternDetector{}
	for in, want := range cases {
		assert.Equal(t, want, d.Detect(in), in)
	}
}

func TestDetectorFunc(t *testing.T) {
	var d Detector = DetectorFunc(func(string) ReviewCommand {
		return ReviewCommand{IsReviewCommand: true, Action: ReviewFull}
	})
	assert.True(t, d.Detect("anything").IsReviewCommand)
}

func TestLatestUploadedDocument(t *testing.T) {
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	msgs := []models.Message{
		{ID: "user-1", Role: models.RoleUser, Content: "hi"},
		uploadMessage("system-1", "doc-a", base.Add(2*time.Minute)),
		uploadMessage("system-2", "doc-b", base),
		{ID: "system-3", Role: models.RoleSystem, File: &models.FileUpload{DocID: "doc-c", Status: models.UploadFailed, UploadedAt: base.Add(time.Hour)}},
		{ID: "system-4", Role: models.RoleSystem, File: &models.FileUpload{Status: models.UploadUploaded, UploadedAt: base.Add(time.Hour)}},
	}
	doc, ok := LatestUploadedDocument(msgs)
	require.True(t, ok)
	assert.Equal(t, "doc-a", doc.File.DocID)

	t.Run("ties prefer the later message", func(t *testing.T) {
		tied := []models.Message{
			uploadMessage("system-1", "first", base),
			uploadMessage("system-2", "second", base),
		}
		doc, ok := LatestUploadedDocument(tied)
		require.True(t, ok)
		assert.Equal(t, "second", doc.File.DocID)
	})

	t.Run("none", func(t *testing.T) {
		_, ok := LatestUploadedDocument(msgs[:1])
		assert.False(t, ok)
	})
}
