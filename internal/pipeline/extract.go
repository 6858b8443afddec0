// Package pipeline implements the dedup-aware comment analysis pipeline:
// text extraction, lookup table construction, checkpointed batch
// classification, incremental resume, cluster annotation, and output merging.
package pipeline

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/civicsignal/docket-cli/internal/model"
)

const (
	// attachmentSeparator precedes all attachment text appended to a
	// comment body.
	attachmentSeparator = "\n\n--- ATTACHMENT CONTENT ---\n\n"
	// nextAttachmentSeparator joins consecutive attachment texts.
	nextAttachmentSeparator = "\n\n--- NEXT ATTACHMENT ---\n\n"

	// TruncationMarker is appended to texts cut at the truncation limit.
	TruncationMarker = "..."

	// wordBoundaryFloor is the fraction of the truncation limit below which
	// a space is ignored when retreating to a word boundary, so a single
	// early space cannot shorten the text drastically.
	wordBoundaryFloor = 0.8
)

// ExtractedText is the result of combining and truncating a record's text.
type ExtractedText struct {
	FullText      string
	TruncatedText string
	TextSource    model.TextSource
}

// Extract combines a record's comment body with its attachment texts and
// truncates the result to truncateChars (0 disables truncation). Truncation
// ends on a word boundary where one exists past 80% of the limit, and
// appends the truncation marker.
func Extract(record *model.RawRecord, truncateChars int) ExtractedText {
	comment := strings.TrimSpace(record.CommentText)

	var attachments []string
	for _, a := range record.AttachmentTexts {
		if t := strings.TrimSpace(a.Text); t != "" {
			attachments = append(attachments, t)
		}
	}

	var full string
	var source model.TextSource
	switch {
	case comment != "" && len(attachments) > 0:
		full = comment + attachmentSeparator + strings.Join(attachments, nextAttachmentSeparator)
		source = model.TextSourceBoth
	case len(attachments) > 0:
		full = strings.Join(attachments, nextAttachmentSeparator)
		source = model.TextSourceAttachments
	default:
		full = comment
		source = model.TextSourceComment
	}

	return ExtractedText{
		FullText:      full,
		TruncatedText: Truncate(full, truncateChars),
		TextSource:    source,
	}
}

// Truncate cuts text to at most limit characters, retreating to the last
// space in the slice provided that space is not before 80% of the limit,
// and appends the truncation marker. A limit <= 0 disables truncation.
func Truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}

	// Retreat to a rune boundary first; the limit is a byte budget and a
	// smart quote or dash can straddle it.
	cutAt := limit
	for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
		cutAt--
	}

	cut := text[:cutAt]
	if idx := strings.LastIndex(cut, " "); idx >= int(wordBoundaryFloor*float64(limit)) {
		cut = cut[:idx]
	}
	return cut + TruncationMarker
}

// asciiReplacer unifies the punctuation variants that commonly differ
// between otherwise identical form-letter submissions.
var asciiReplacer = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"–", "-", // en dash
	"—", "-", // em dash
	" ", " ", // no-break space
)

// Normalize produces the deduplication key for a text: NFKC fold, lowercase,
// smart quotes and dashes unified to ASCII, whitespace runs collapsed to a
// single space, leading/trailing whitespace stripped.
//
// Two texts with the same key are duplicates for all downstream purposes.
// The same function must be applied at build time and at resume time;
// anything else silently forks duplicates into separate entries.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ToLower(text)
	text = asciiReplacer.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}
