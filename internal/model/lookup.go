package model

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// TextSource tags which parts of a submission contributed text to an entry.
type TextSource string

const (
	TextSourceComment     TextSource = "comment"
	TextSourceAttachments TextSource = "attachments"
	TextSourceBoth        TextSource = "comment+attachments"
)

const lookupIDPrefix = "lookup_"

// FormatLookupID renders a sequential entry number as a stable lookup id,
// e.g. FormatLookupID(7) == "lookup_000007".
func FormatLookupID(n int) string {
	return fmt.Sprintf("%s%06d", lookupIDPrefix, n)
}

// ParseLookupID extracts the sequence number from a lookup id. Returns 0 and
// false for malformed ids.
func ParseLookupID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, lookupIDPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// LookupEntry is one canonical unique text: many raw records whose
// normalized text is identical all map to a single entry. Every RawRecord id
// appears in the CommentIDs of exactly one entry — the central correctness
// property of the pipeline.
//
// Analysis fields use nil to mean "not yet analyzed". The sentinel failure
// state after exhausted retries is non-nil pointers to empty strings with
// Rationale holding "Error: <reason>" — distinct from unanalyzed, and not
// retried automatically on the next scheduler pass.
type LookupEntry struct {
	LookupID            string     `json:"lookup_id"`
	TruncatedText       string     `json:"truncated_text"`
	TextSource          TextSource `json:"text_source"`
	CommentIDs          []string   `json:"comment_ids"`
	CommentCount        int        `json:"comment_count"`
	FullTextLength      int        `json:"full_text_length"`
	TruncatedTextLength int        `json:"truncated_text_length"`

	Stance    *string `json:"stance"`
	KeyQuote  *string `json:"key_quote"`
	Rationale *string `json:"rationale"`
	Themes    *string `json:"themes"` // comma-joined; list form exists only at the classifier boundary

	ClusterID *string  `json:"cluster_id,omitempty"`
	PCAX      *float64 `json:"pca_x,omitempty"`
	PCAY      *float64 `json:"pca_y,omitempty"`
}

// Analyzed reports whether the entry has a classification outcome, including
// the sentinel failure state.
func (e *LookupEntry) Analyzed() bool {
	return e.Stance != nil
}

// Failed reports whether the entry holds the sentinel failure state written
// after retry exhaustion.
func (e *LookupEntry) Failed() bool {
	return e.Stance != nil && *e.Stance == ""
}

// SetResult flattens a successful classification onto the entry.
func (e *LookupEntry) SetResult(r *ClassificationResult) {
	stance := string(r.Stance)
	themes := JoinThemes(r.Themes)
	e.Stance = &stance
	e.KeyQuote = &r.KeyQuote
	e.Rationale = &r.Rationale
	e.Themes = &themes
}

// SetFailure writes the sentinel failure state onto the entry.
func (e *LookupEntry) SetFailure(reason string) {
	empty := ""
	rationale := "Error: " + reason
	e.Stance = &empty
	e.KeyQuote = &empty
	e.Themes = &empty
	e.Rationale = &rationale
}

// ClearAnalysis resets the entry to the unanalyzed state. Used when
// explicitly re-running sentinel-failed entries.
func (e *LookupEntry) ClearAnalysis() {
	e.Stance = nil
	e.KeyQuote = nil
	e.Rationale = nil
	e.Themes = nil
}

// HasComment reports whether the given raw record id is already a member.
func (e *LookupEntry) HasComment(id string) bool {
	return slices.Contains(e.CommentIDs, id)
}

// AddComment appends a raw record id if not already present and keeps
// CommentCount in sync. Returns true if the id was added.
func (e *LookupEntry) AddComment(id string) bool {
	if e.HasComment(id) {
		return false
	}
	e.CommentIDs = append(e.CommentIDs, id)
	e.CommentCount = len(e.CommentIDs)
	return true
}

// SortLookupTable orders entries by (-comment_count, lookup_id): the most
// duplicated text first, ties broken by earliest-assigned id. Downstream
// reports assume this order, so it is reapplied after every build, merge,
// and analysis batch.
func SortLookupTable(table []*LookupEntry) {
	slices.SortStableFunc(table, func(a, b *LookupEntry) int {
		if a.CommentCount != b.CommentCount {
			return b.CommentCount - a.CommentCount
		}
		return strings.Compare(a.LookupID, b.LookupID)
	})
}

// NextLookupID returns the next sequential id for a table: max existing + 1.
// Ids are never reused, even across resume runs.
func NextLookupID(table []*LookupEntry) string {
	maxSeq := 0
	for _, e := range table {
		if n, ok := ParseLookupID(e.LookupID); ok && n > maxSeq {
			maxSeq = n
		}
	}
	return FormatLookupID(maxSeq + 1)
}
