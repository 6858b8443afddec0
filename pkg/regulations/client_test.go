package regulations

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	// High rate so tests never sleep on the limiter.
	return NewClient("test-key", WithBaseURL(srv.URL), WithRatePerMinute(600000))
}

func TestListDocketCommentIDsPaginates(t *testing.T) {
	pages := map[string]string{
		"1": `{"data": [{"id": "A-1"}, {"id": "A-2"}], "meta": {"totalPages": 2}}`,
		"2": `{"data": [{"id": "A-3"}], "meta": {"totalPages": 2}}`,
	}

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/comments", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "FAA-2026-0001", r.URL.Query().Get("filter[docketId]"))
		fmt.Fprint(w, pages[r.URL.Query().Get("page[number]")])
	})

	ids, err := client.ListDocketCommentIDs(context.Background(), "FAA-2026-0001")
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "A-2", "A-3"}, ids)
}

func TestGetCommentParsesAttributesAndAttachments(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/comments/FAA-2026-0001-0042", r.URL.Path)
		assert.Equal(t, "attachments", r.URL.Query().Get("include"))
		fmt.Fprint(w, `{
			"data": {
				"id": "FAA-2026-0001-0042",
				"attributes": {
					"title": "Comment from J. Doe",
					"comment": "I oppose this rule.",
					"category": "Individual",
					"docketId": "FAA-2026-0001",
					"postedDate": "2026-02-01",
					"receiveDate": "2026-01-30",
					"firstName": "J.",
					"lastName": "Doe",
					"stateProvinceRegion": "TX"
				}
			},
			"included": [
				{
					"type": "attachments",
					"attributes": {
						"title": "Attached letter",
						"fileFormats": [
							{"fileUrl": "https://downloads.example/letter.pdf", "format": "pdf"},
							{"fileUrl": "https://downloads.example/letter.docx", "format": "docx"}
						]
					}
				},
				{"type": "unrelated", "attributes": {}}
			]
		}`)
	})

	comment, err := client.GetComment(context.Background(), "FAA-2026-0001-0042")
	require.NoError(t, err)

	assert.Equal(t, "FAA-2026-0001-0042", comment.ID)
	assert.Equal(t, "I oppose this rule.", comment.CommentText)
	assert.Equal(t, "J. Doe", comment.Submitter)
	assert.Equal(t, "TX", comment.State)
	assert.Equal(t, "2026-01-30", comment.ReceivedDate)

	// One attachment, preferring the first offered format.
	require.Len(t, comment.Attachments, 1)
	assert.Equal(t, "Attached letter", comment.Attachments[0].Title)
	assert.Equal(t, "pdf", comment.Attachments[0].Format)
}

func TestGetCommentRetriesRateLimit(t *testing.T) {
	var requests atomic.Int64
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data": {"id": "X-1", "attributes": {"comment": "hello"}}}`)
	})

	comment, err := client.GetComment(context.Background(), "X-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", comment.CommentText)
	assert.Equal(t, int64(2), requests.Load())
}

func TestGetCommentNotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errors": [{"status": "404"}]}`)
	})

	_, err := client.GetComment(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDownloadAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "file-bytes")
	}))
	t.Cleanup(srv.Close)

	client := NewClient("k", WithRatePerMinute(600000))
	data, err := client.DownloadAttachment(context.Background(), srv.URL+"/letter.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("file-bytes"), data)
}

func TestJoinName(t *testing.T) {
	assert.Equal(t, "J. Doe", joinName("J.", "Doe"))
	assert.Equal(t, "Doe", joinName("", "Doe"))
	assert.Equal(t, "J.", joinName("J.", ""))
	assert.Equal(t, "", joinName("", ""))
}
