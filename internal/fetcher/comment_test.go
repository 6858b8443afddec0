package fetcher

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/docket-cli/pkg/regulations"
)

// stubRegulations serves canned comments and attachment bytes.
type stubRegulations struct {
	comments    map[string]*regulations.Comment
	attachments map[string][]byte
	downloadErr error
}

func (s *stubRegulations) ListDocketCommentIDs(ctx context.Context, docketID string) ([]string, error) {
	return nil, nil
}

func (s *stubRegulations) GetComment(ctx context.Context, id string) (*regulations.Comment, error) {
	c, ok := s.comments[id]
	if !ok {
		return nil, eris.Errorf("comment %s not found", id)
	}
	return c, nil
}

func (s *stubRegulations) DownloadAttachment(ctx context.Context, fileURL string) ([]byte, error) {
	if s.downloadErr != nil {
		return nil, s.downloadErr
	}
	return s.attachments[fileURL], nil
}

func TestGetCommentMapsMetadata(t *testing.T) {
	f := NewCommentFetcher(&stubRegulations{comments: map[string]*regulations.Comment{
		"FAA-1-0001": {
			ID:           "FAA-1-0001",
			Title:        "Comment from J. Doe",
			CommentText:  "I oppose this rule.",
			DocketID:     "FAA-1",
			Submitter:    "J. Doe",
			State:        "TX",
			PostedDate:   "2026-02-01",
			ReceivedDate: "2026-01-30",
		},
	}})

	record, err := f.GetComment(context.Background(), "FAA-1-0001")
	require.NoError(t, err)

	assert.Equal(t, "FAA-1-0001", record.ID)
	assert.Equal(t, "I oppose this rule.", record.CommentText)
	assert.Equal(t, "J. Doe", record.Metadata.Submitter)
	assert.Equal(t, "TX", record.Metadata.State)
	assert.Empty(t, record.AttachmentTexts)
}

func TestGetCommentStripsHTML(t *testing.T) {
	f := NewCommentFetcher(&stubRegulations{comments: map[string]*regulations.Comment{
		"c": {ID: "c", CommentText: "<p>I oppose &amp; object.</p><br/>Sincerely"},
	}})

	record, err := f.GetComment(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "I oppose & object.\n\nSincerely", record.CommentText)
}

func TestGetCommentExtractsTextAttachment(t *testing.T) {
	stub := &stubRegulations{
		comments: map[string]*regulations.Comment{
			"c": {
				ID:          "c",
				CommentText: "See attached.",
				Attachments: []regulations.Attachment{
					{Title: "letter", FileURL: "https://dl/letter.txt", Format: "txt"},
				},
			},
		},
		attachments: map[string][]byte{
			"https://dl/letter.txt": []byte("Full letter text."),
		},
	}

	record, err := NewCommentFetcher(stub).GetComment(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, record.AttachmentTexts, 1)
	assert.Equal(t, "letter", record.AttachmentTexts[0].Title)
	assert.Equal(t, "Full letter text.", record.AttachmentTexts[0].Text)
}

func TestGetCommentBinaryAttachmentGetsMarker(t *testing.T) {
	stub := &stubRegulations{
		comments: map[string]*regulations.Comment{
			"c": {
				ID: "c",
				Attachments: []regulations.Attachment{
					{Title: "scan", FileURL: "https://dl/scan.pdf", Format: "pdf"},
				},
			},
		},
	}

	record, err := NewCommentFetcher(stub).GetComment(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, record.AttachmentTexts, 1)
	assert.Equal(t, "[EXTRACTION FAILED: pdf]", record.AttachmentTexts[0].Text)
}

func TestGetCommentDownloadFailureGetsMarker(t *testing.T) {
	stub := &stubRegulations{
		comments: map[string]*regulations.Comment{
			"c": {
				ID: "c",
				Attachments: []regulations.Attachment{
					{Title: "letter", FileURL: "https://dl/letter.txt", Format: "txt"},
				},
			},
		},
		downloadErr: eris.New("503 from cdn"),
	}

	record, err := NewCommentFetcher(stub).GetComment(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, record.AttachmentTexts, 1)
	assert.Equal(t, "[EXTRACTION FAILED: txt]", record.AttachmentTexts[0].Text)
}
