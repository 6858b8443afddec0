package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsignal/docket-cli/internal/dataset"
	"github.com/civicsignal/docket-cli/internal/model"
)

// Fetcher is the fetch boundary: it produces raw comment records with
// attachment text already resolved. Extraction failures upstream arrive as
// bracketed marker strings inside the attachment text.
type Fetcher interface {
	GetComment(ctx context.Context, id string) (*model.RawRecord, error)
}

// ResumeOptions configures an incremental merge run.
type ResumeOptions struct {
	// TruncateChars must match the truncation the existing table was built
	// with; a mismatch is a hard error.
	TruncateChars int
	// Limit caps how many new records are fetched this run. 0 = no cap;
	// the remainder stays in the delta for the next resume.
	Limit int
}

// ResumeStats reports what an incremental merge did.
type ResumeStats struct {
	NewIDs             int `json:"new_ids"`
	Fetched            int `json:"fetched"`
	FetchErrors        int `json:"fetch_errors"`
	MergedIntoExisting int `json:"merged_into_existing"`
	NewEntries         int `json:"new_entries"`
}

// Resume folds newly listed comment ids into an existing dataset: it
// computes the id delta against the raw set, fetches only the new records,
// and merges each into the lookup table — appending to the entry whose
// normalized key matches, or creating a new entry with the next sequential
// lookup id. Entries that only gained members keep their analysis; only new
// entries flow to the scheduler afterwards.
//
// Running Resume twice with the same inputs is a no-op: ids already present
// are skipped and AddComment refuses duplicates.
func Resume(ctx context.Context, csvIDs []string, raw []*model.RawRecord, table []*model.LookupEntry, manifest *dataset.Manifest, fetcher Fetcher, opts ResumeOptions) ([]*model.RawRecord, []*model.LookupEntry, *ResumeStats, error) {
	if err := verifyTruncation(table, manifest, opts.TruncateChars); err != nil {
		return nil, nil, nil, err
	}

	existing := model.RawIDSet(raw)
	var newIDs []string
	seen := make(map[string]struct{}, len(csvIDs))
	for _, id := range csvIDs {
		if _, ok := existing[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		newIDs = append(newIDs, id)
	}

	stats := &ResumeStats{NewIDs: len(newIDs)}
	if len(newIDs) == 0 {
		zap.L().Info("resume: no new comment ids, nothing to do")
		return raw, table, stats, nil
	}

	if opts.Limit > 0 && len(newIDs) > opts.Limit {
		zap.L().Info("resume: applying fetch limit",
			zap.Int("new_ids", len(newIDs)),
			zap.Int("limit", opts.Limit),
		)
		newIDs = newIDs[:opts.Limit]
	}

	index := keyIndex(table)

	for _, id := range newIDs {
		if ctx.Err() != nil {
			return nil, nil, nil, ctx.Err()
		}

		record, err := fetcher.GetComment(ctx, id)
		if err != nil {
			// Leave the id in the delta for the next run.
			stats.FetchErrors++
			zap.L().Warn("resume: fetch failed, will retry on next run",
				zap.String("comment_id", id),
				zap.Error(err),
			)
			continue
		}
		raw = append(raw, record)
		stats.Fetched++

		ext := Extract(record, opts.TruncateChars)
		key := Normalize(ext.TruncatedText)
		if key == "" {
			zap.L().Debug("resume: excluding record with empty text",
				zap.String("comment_id", record.ID),
			)
			continue
		}

		if entry, ok := index[key]; ok {
			if entry.AddComment(record.ID) {
				stats.MergedIntoExisting++
			}
			continue
		}

		entry := &model.LookupEntry{
			LookupID:            model.NextLookupID(table),
			TruncatedText:       ext.TruncatedText,
			TextSource:          ext.TextSource,
			FullTextLength:      len(ext.FullText),
			TruncatedTextLength: len(ext.TruncatedText),
		}
		entry.AddComment(record.ID)
		table = append(table, entry)
		index[key] = entry
		stats.NewEntries++
	}

	model.SortLookupTable(table)

	zap.L().Info("resume: merge complete",
		zap.Int("new_ids", stats.NewIDs),
		zap.Int("fetched", stats.Fetched),
		zap.Int("fetch_errors", stats.FetchErrors),
		zap.Int("merged_into_existing", stats.MergedIntoExisting),
		zap.Int("new_entries", stats.NewEntries),
	)

	return raw, table, stats, nil
}

// verifyTruncation refuses to merge under a truncation limit different from
// the one the existing table was built with — mixing dedup keys computed
// under two truncation regimes would corrupt the one-entry-per-id invariant.
//
// The manifest is authoritative when present. For datasets predating the
// manifest, truncation activity is inferred from observed lengths: any entry
// whose full text exceeds its truncated text proves truncation was active.
func verifyTruncation(table []*model.LookupEntry, manifest *dataset.Manifest, truncateChars int) error {
	if manifest != nil {
		if manifest.TruncateChars != truncateChars {
			return eris.Errorf(
				"resume: truncation mismatch: dataset was built with truncate_chars=%d, resume was given %d; re-run with --truncate %d",
				manifest.TruncateChars, truncateChars, manifest.TruncateChars,
			)
		}
		return nil
	}

	if len(table) == 0 {
		return nil
	}

	maxTruncated := 0
	active := false
	for _, e := range table {
		if e.TruncatedTextLength > maxTruncated {
			maxTruncated = e.TruncatedTextLength
		}
		if e.FullTextLength > e.TruncatedTextLength {
			active = true
		}
	}

	if active && truncateChars <= 0 {
		return eris.Errorf(
			"resume: existing table shows truncated entries (longest %d chars) but no --truncate value was supplied",
			maxTruncated,
		)
	}
	if active && maxTruncated > truncateChars+len(TruncationMarker) {
		return eris.Errorf(
			"resume: existing table holds entries up to %d chars, longer than the supplied --truncate %d allows; the original truncation limit must be used",
			maxTruncated, truncateChars,
		)
	}
	return nil
}
