package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/docket-cli/internal/model"
)

func mergedFixture(t *testing.T) ([]*model.RawRecord, []*model.LookupEntry) {
	t.Helper()
	raw := []*model.RawRecord{
		{ID: "c1", CommentText: "I oppose this rule.", Metadata: model.RecordMetadata{Submitter: "A. Smith", State: "OH"}},
		{ID: "c2", CommentText: "i oppose this rule."},
		{ID: "c3", CommentText: "I support this rule."},
	}
	table := BuildLookupTable(raw, 0)
	for _, e := range table {
		e.SetResult(forResult())
	}
	return raw, table
}

func TestMergeOutputOneRowPerRecord(t *testing.T) {
	raw, table := mergedFixture(t)

	rows, err := MergeOutput(raw, table)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byID := map[string]*model.MergedRow{}
	for _, row := range rows {
		byID[row.CommentID] = row
	}

	// Duplicates share the entry's analysis and comment count.
	assert.Equal(t, byID["c1"].LookupID, byID["c2"].LookupID)
	assert.Equal(t, 2, byID["c1"].CommentCount)
	assert.Equal(t, "For", byID["c1"].Stance)
	assert.Equal(t, byID["c1"].Rationale, byID["c2"].Rationale)
	assert.NotEqual(t, byID["c1"].LookupID, byID["c3"].LookupID)

	// Metadata passes through untouched.
	assert.Equal(t, "A. Smith", byID["c1"].Submitter)
	assert.Equal(t, "OH", byID["c1"].State)
	assert.Empty(t, byID["c2"].Submitter)
}

func TestMergeOutputEmptyTextRecordGetsEmptyAnalysis(t *testing.T) {
	raw := []*model.RawRecord{
		{ID: "c1", CommentText: "real text"},
		{ID: "c2", CommentText: "   "},
	}
	table := BuildLookupTable(raw, 0)

	rows, err := MergeOutput(raw, table)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var empty *model.MergedRow
	for _, row := range rows {
		if row.CommentID == "c2" {
			empty = row
		}
	}
	require.NotNil(t, empty)
	assert.Empty(t, empty.LookupID)
	assert.Empty(t, empty.Stance)
	assert.Zero(t, empty.CommentCount)
}

func TestMergeOutputDoubleMembershipIsHardError(t *testing.T) {
	raw, table := mergedFixture(t)
	// Corrupt the table: c1 appears under two entries.
	table[1].CommentIDs = append(table[1].CommentIDs, "c1")
	table[1].CommentCount = len(table[1].CommentIDs)

	rows, err := MergeOutput(raw, table)
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.Contains(t, err.Error(), `"c1"`)
	assert.Contains(t, err.Error(), table[0].LookupID)
	assert.Contains(t, err.Error(), table[1].LookupID)
}

func TestValidateCleanDataset(t *testing.T) {
	raw, table := mergedFixture(t)
	rows, err := MergeOutput(raw, table)
	require.NoError(t, err)

	result := Validate([]string{"c1", "c2", "c3"}, raw, table, rows)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateCountMismatches(t *testing.T) {
	raw, table := mergedFixture(t)
	rows, err := MergeOutput(raw, table)
	require.NoError(t, err)

	result := Validate([]string{"c1", "c2", "c3", "c4"}, raw, table, rows)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "count mismatch")

	result = Validate(nil, raw, table, rows[:2])
	assert.False(t, result.Valid)
}

func TestValidateDoubleMembership(t *testing.T) {
	raw, table := mergedFixture(t)
	table[1].CommentIDs = append(table[1].CommentIDs, "c1")
	table[1].CommentCount = len(table[1].CommentIDs)

	result := Validate(nil, raw, table, nil)
	assert.False(t, result.Valid)

	found := false
	for _, e := range result.Errors {
		found = found || strings.Contains(e, "owned by two lookup entries")
	}
	assert.True(t, found)
}

func TestValidateCommentCountDrift(t *testing.T) {
	raw, table := mergedFixture(t)
	table[0].CommentCount = 99
	rows, err := MergeOutput(raw, table)
	require.NoError(t, err)

	result := Validate(nil, raw, table, rows)
	assert.False(t, result.Valid)
}

func TestValidatePartialAnalysisIsError(t *testing.T) {
	raw, table := mergedFixture(t)
	table[0].KeyQuote = nil

	result := Validate(nil, raw, table, nil)
	assert.False(t, result.Valid)

	found := false
	for _, e := range result.Errors {
		found = found || strings.Contains(e, "partial analysis")
	}
	assert.True(t, found)
}

func TestValidateUnanalyzedIsWarningOnly(t *testing.T) {
	raw := []*model.RawRecord{{ID: "c1", CommentText: "text"}}
	table := BuildLookupTable(raw, 0)
	rows, err := MergeOutput(raw, table)
	require.NoError(t, err)

	result := Validate(nil, raw, table, rows)
	assert.True(t, result.Valid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "unanalyzed")
}

func TestValidateEmptyTextWarning(t *testing.T) {
	raw := []*model.RawRecord{
		{ID: "c1", CommentText: "text"},
		{ID: "c2", CommentText: " "},
	}
	table := BuildLookupTable(raw, 0)
	for _, e := range table {
		e.SetResult(forResult())
	}
	rows, err := MergeOutput(raw, table)
	require.NoError(t, err)

	result := Validate(nil, raw, table, rows)
	assert.True(t, result.Valid)

	found := false
	for _, w := range result.Warnings {
		found = found || strings.Contains(w, "missing from lookup table")
	}
	assert.True(t, found)
}
