package conversation

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"copilotos/internal/models"
)

type ReviewAction string

const (
	ReviewNone      ReviewAction = "none"
	ReviewSummarize ReviewAction = "summarize"
	ReviewFull      ReviewAction = "review"
)

// ReviewCommand is what the detector extracted from the composer text.
type ReviewCommand struct {
	IsReviewCommand bool
	Action          ReviewAction
}

// Detector decides whether composer text asks to act on an uploaded document.
type Detector interface {
	Detect(text string) ReviewCommand
}

// DetectorFunc adapts a plain function to Detector.
type DetectorFunc func(text string) ReviewCommand

func (f DetectorFunc) Detect(text string) ReviewCommand { return f(text) }

var (
	summarizeRE = regexp.MustCompile(`\b(resume|resumen|resumir|resumeme|sintetiza|summari[sz]e|summary|tl;?dr)\b`)
	reviewRE    = regexp.MustCompile(`\b(revisa|revisar|revision|review|audita|auditar|corrige|corregir|proofread|check)\b`)
	documentRE  = regexp.MustCompile(`\b(documento|archivo|doc|pdf|document|file|reporte|report)s?\b`)
)

// PatternDetector recognizes Spanish and English review commands such as
// "resume el documento" or "review the file". A command needs both a verb and
// a reference to a document.
type PatternDetector struct{}

func (PatternDetector) Detect(text string) ReviewCommand {
	s := foldAccents(strings.ToLower(strings.TrimSpace(text)))
	if s == "" || !documentRE.MatchString(s) {
		return ReviewCommand{Action: ReviewNone}
	}
	switch {
	case summarizeRE.MatchString(s):
		return ReviewCommand{IsReviewCommand: true, Action: ReviewSummarize}
	case reviewRE.MatchString(s):
		return ReviewCommand{IsReviewCommand: true, Action: ReviewFull}
	default:
		return ReviewCommand{Action: ReviewNone}
	}
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// LatestUploadedDocument returns the most recently uploaded document in the
// history. Equal upload times resolve to the later message.
func LatestUploadedDocument(msgs []models.Message) (models.Message, bool) {
	type candidate struct {
		idx int
		msg models.Message
	}
	var found []candidate
	for i, m := range msgs {
		if m.IsUploadedDocument() {
			found = append(found, candidate{idx: i, msg: m})
		}
	}
	if len(found) == 0 {
		return models.Message{}, false
	}
	sort.Slice(found, func(i, j int) bool {
		ti, tj := found[i].msg.File.UploadedAt, found[j].msg.File.UploadedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return found[i].idx > found[j].idx
	})
	return found[0].msg, true
}
