package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/docket-cli/internal/model"
)

func TestBuildLookupTableDeduplicates(t *testing.T) {
	records := []*model.RawRecord{
		{ID: "c1", CommentText: "I OPPOSE this rule."},
		{ID: "c2", CommentText: "i oppose   this rule."},
		{ID: "c3", CommentText: "I support this rule."},
		{ID: "c4", CommentText: "I oppose this rule.\n"},
	}

	table := BuildLookupTable(records, 0)
	require.Len(t, table, 2)

	// Most-duplicated entry sorts first; first-seen casing is kept.
	assert.Equal(t, "I OPPOSE this rule.", table[0].TruncatedText)
	assert.Equal(t, []string{"c1", "c2", "c4"}, table[0].CommentIDs)
	assert.Equal(t, 3, table[0].CommentCount)
	assert.Equal(t, []string{"c3"}, table[1].CommentIDs)
}

func TestBuildLookupTableIDsSequential(t *testing.T) {
	records := []*model.RawRecord{
		{ID: "c1", CommentText: "alpha"},
		{ID: "c2", CommentText: "beta"},
		{ID: "c3", CommentText: "gamma"},
	}

	table := BuildLookupTable(records, 0)
	require.Len(t, table, 3)

	ids := map[string]bool{}
	for _, e := range table {
		ids[e.LookupID] = true
	}
	assert.True(t, ids["lookup_000001"])
	assert.True(t, ids["lookup_000002"])
	assert.True(t, ids["lookup_000003"])
}

func TestBuildLookupTableExcludesEmptyText(t *testing.T) {
	records := []*model.RawRecord{
		{ID: "c1", CommentText: "real comment"},
		{ID: "c2", CommentText: "   \n\t  "},
		{ID: "c3"},
	}

	table := BuildLookupTable(records, 0)
	require.Len(t, table, 1)
	assert.Equal(t, []string{"c1"}, table[0].CommentIDs)
}

func TestBuildLookupTableTruncationMergesLongVariants(t *testing.T) {
	// Two form letters identical in the first 50 characters but divergent
	// afterward collapse into one entry once truncation is applied.
	prefix := "We the undersigned strongly oppose the proposed change because"
	records := []*model.RawRecord{
		{ID: "c1", CommentText: prefix + " of impacts on small businesses."},
		{ID: "c2", CommentText: prefix + " it would raise compliance costs."},
	}

	full := BuildLookupTable(records, 0)
	assert.Len(t, full, 2)

	truncated := BuildLookupTable(records, 50)
	require.Len(t, truncated, 1)
	assert.Equal(t, 2, truncated[0].CommentCount)
	assert.Greater(t, truncated[0].FullTextLength, truncated[0].TruncatedTextLength)
}

func TestBuildLookupTableTieBreakByLookupID(t *testing.T) {
	records := []*model.RawRecord{
		{ID: "c1", CommentText: "first text"},
		{ID: "c2", CommentText: "second text"},
	}

	table := BuildLookupTable(records, 0)
	require.Len(t, table, 2)
	assert.Less(t, table[0].LookupID, table[1].LookupID)
}

func TestKeyIndexRoundTrip(t *testing.T) {
	records := []*model.RawRecord{
		{ID: "c1", CommentText: "Some “quoted” text"},
	}
	table := BuildLookupTable(records, 0)

	idx := keyIndex(table)
	e, ok := idx[Normalize(`some "quoted" text`)]
	require.True(t, ok)
	assert.Equal(t, table[0], e)
}
