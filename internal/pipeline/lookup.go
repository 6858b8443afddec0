package pipeline

import (
	"go.uber.org/zap"

	"github.com/civicsignal/docket-cli/internal/model"
)

// BuildLookupTable groups raw records by normalized text key into one
// LookupEntry per distinct text. Entries receive sequential lookup ids in
// first-seen order and the returned table is sorted most-duplicated first.
//
// Records whose text normalizes to the empty string are excluded from the
// table (logged, not an error); the output merger later emits them with
// empty analysis fields.
func BuildLookupTable(records []*model.RawRecord, truncateChars int) []*model.LookupEntry {
	byKey := make(map[string]*model.LookupEntry)
	var table []*model.LookupEntry
	excluded := 0

	for _, record := range records {
		ext := Extract(record, truncateChars)
		key := Normalize(ext.TruncatedText)
		if key == "" {
			excluded++
			zap.L().Debug("lookup: excluding record with empty text",
				zap.String("comment_id", record.ID),
			)
			continue
		}

		entry, ok := byKey[key]
		if !ok {
			// First-seen casing wins for the stored text.
			entry = &model.LookupEntry{
				LookupID:            model.FormatLookupID(len(byKey) + 1),
				TruncatedText:       ext.TruncatedText,
				TextSource:          ext.TextSource,
				FullTextLength:      len(ext.FullText),
				TruncatedTextLength: len(ext.TruncatedText),
			}
			byKey[key] = entry
			table = append(table, entry)
		}
		entry.AddComment(record.ID)
	}

	model.SortLookupTable(table)

	zap.L().Info("lookup: table built",
		zap.Int("raw_records", len(records)),
		zap.Int("unique_texts", len(table)),
		zap.Int("excluded_empty", excluded),
	)

	return table
}

// keyIndex builds the normalized-key index over an existing table. Used by
// the resume path to find the entry a new record's text belongs to.
func keyIndex(table []*model.LookupEntry) map[string]*model.LookupEntry {
	idx := make(map[string]*model.LookupEntry, len(table))
	for _, e := range table {
		idx[Normalize(e.TruncatedText)] = e
	}
	return idx
}
