package pipeline

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsignal/docket-cli/internal/model"
)

// MergeOutput expands the lookup table back out to one row per raw record.
// Records excluded from the table (empty text) produce rows with empty
// analysis fields — a legitimate state, not an error.
//
// A raw id owned by two entries means an entry's analysis is being
// attributed to records it does not represent; that is a hard error raised
// before any row is produced, never a warning.
func MergeOutput(raw []*model.RawRecord, table []*model.LookupEntry) ([]*model.MergedRow, error) {
	owner, err := ownerIndex(table)
	if err != nil {
		return nil, err
	}

	rows := make([]*model.MergedRow, 0, len(raw))
	unmatched := 0
	for _, r := range raw {
		row := &model.MergedRow{
			CommentID:    r.ID,
			Title:        r.Metadata.Title,
			Category:     r.Metadata.Category,
			DocketID:     r.Metadata.DocketID,
			PostedDate:   r.Metadata.PostedDate,
			ReceivedDate: r.Metadata.ReceivedDate,
			Submitter:    r.Metadata.Submitter,
			Organization: r.Metadata.Organization,
			State:        r.Metadata.State,
		}

		if e, ok := owner[r.ID]; ok {
			row.LookupID = e.LookupID
			row.TruncatedText = e.TruncatedText
			row.CommentCount = e.CommentCount
			if e.Stance != nil {
				row.Stance = *e.Stance
			}
			if e.Themes != nil {
				row.Themes = *e.Themes
			}
			if e.KeyQuote != nil {
				row.KeyQuote = *e.KeyQuote
			}
			if e.Rationale != nil {
				row.Rationale = *e.Rationale
			}
			if e.ClusterID != nil {
				row.ClusterID = *e.ClusterID
			}
			row.PCAX = e.PCAX
			row.PCAY = e.PCAY
		} else {
			unmatched++
		}

		rows = append(rows, row)
	}

	if unmatched > 0 {
		zap.L().Warn("merge: records without lookup entry (empty text)",
			zap.Int("count", unmatched),
		)
	}

	return rows, nil
}

// ownerIndex maps every raw record id to its owning entry, scanning each
// entry's members once. Fails hard on double membership.
func ownerIndex(table []*model.LookupEntry) (map[string]*model.LookupEntry, error) {
	owner := make(map[string]*model.LookupEntry)
	for _, e := range table {
		for _, id := range e.CommentIDs {
			if prev, ok := owner[id]; ok {
				return nil, eris.Errorf(
					"merge: comment id %q owned by two lookup entries: %s and %s",
					id, prev.LookupID, e.LookupID,
				)
			}
			owner[id] = e
		}
	}
	return owner, nil
}

// ValidationResult is the outcome of a consistency check across the raw set,
// the lookup table, and the merged output. Errors are data-integrity
// violations that abort the pipeline; warnings describe soft completeness
// gaps a later resume run can fill.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *ValidationResult) errorf(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
	v.Valid = false
}

func (v *ValidationResult) warnf(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks the mutual consistency of all pipeline artifacts:
// three-way record counts, exactly-one-entry membership for every raw id,
// per-entry count integrity, and no partial-analysis state in the output.
// csvIDs may be nil when no source id list is available; the three-way count
// check then degrades to raw-vs-merged.
func Validate(csvIDs []string, raw []*model.RawRecord, table []*model.LookupEntry, merged []*model.MergedRow) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if csvIDs != nil && len(csvIDs) != len(raw) {
		result.errorf("count mismatch: source lists %d comment ids but raw set holds %d records", len(csvIDs), len(raw))
	}
	if len(raw) != len(merged) {
		result.errorf("count mismatch: %d raw records but %d merged rows", len(raw), len(merged))
	}

	// Membership: every raw id in exactly one entry.
	owner := make(map[string]string)
	memberTotal := 0
	for _, e := range table {
		if e.CommentCount != len(e.CommentIDs) {
			result.errorf("entry %s: comment_count=%d but holds %d ids", e.LookupID, e.CommentCount, len(e.CommentIDs))
		}
		memberTotal += len(e.CommentIDs)
		for _, id := range e.CommentIDs {
			if prev, ok := owner[id]; ok {
				result.errorf("comment id %q owned by two lookup entries: %s and %s", id, prev, e.LookupID)
				continue
			}
			owner[id] = e.LookupID
		}
	}

	var missing []string
	for _, r := range raw {
		if _, ok := owner[r.ID]; !ok {
			missing = append(missing, r.ID)
		}
	}
	if len(missing) > 0 {
		result.warnf("%d comment ids missing from lookup table (empty-text records): %v", len(missing), firstN(missing, 10))
	}

	if got := memberTotal; got != len(raw)-len(missing) {
		result.errorf("membership total %d does not match raw records %d minus %d excluded", got, len(raw), len(missing))
	}

	// Analysis fields: all set or none set, sentinel included.
	unanalyzed := 0
	for _, e := range table {
		set := 0
		for _, f := range []*string{e.Stance, e.KeyQuote, e.Rationale, e.Themes} {
			if f != nil {
				set++
			}
		}
		switch set {
		case 0:
			unanalyzed++
		case 4:
		default:
			result.errorf("entry %s has partial analysis: %d of 4 fields set", e.LookupID, set)
		}
	}
	if unanalyzed > 0 {
		result.warnf("%d of %d entries are unanalyzed; run analyze or resume to fill them", unanalyzed, len(table))
	}

	return result
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
