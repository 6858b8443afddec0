// Package regulations provides a client for the regulations.gov v4 API:
// docket comment listing, comment detail with attachments, and attachment
// download, behind a shared rate limiter.
package regulations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client defines the regulations.gov operations the pipeline needs.
type Client interface {
	// ListDocketCommentIDs pages through all comment ids posted on a docket.
	ListDocketCommentIDs(ctx context.Context, docketID string) ([]string, error)
	// GetComment fetches one comment's detail, attachments included.
	GetComment(ctx context.Context, commentID string) (*Comment, error)
	// DownloadAttachment fetches an attachment file's raw bytes.
	DownloadAttachment(ctx context.Context, fileURL string) ([]byte, error)
}

// Comment is a comment detail record.
type Comment struct {
	ID           string
	Title        string
	CommentText  string
	Category     string
	DocketID     string
	PostedDate   string
	ReceivedDate string
	Submitter    string
	Organization string
	State        string
	Attachments  []Attachment
}

// Attachment is one file attached to a comment. A comment attachment may be
// offered in several formats; FileURL points at the preferred one.
type Attachment struct {
	Title   string
	FileURL string
	Format  string
}

const defaultPageSize = 250

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRatePerMinute caps request throughput. regulations.gov allows 50
// requests per minute on a standard API key.
func WithRatePerMinute(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	limiter *rate.Limiter
	http    *http.Client
}

// NewClient creates a regulations.gov v4 client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.regulations.gov/v4",
		limiter: rate.NewLimiter(rate.Every(time.Minute/50), 1),
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// API response shapes. Only the fields the pipeline reads are declared.

type listResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
	Meta struct {
		TotalPages int `json:"totalPages"`
	} `json:"meta"`
}

type commentResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Title        string `json:"title"`
			Comment      string `json:"comment"`
			Category     string `json:"category"`
			DocketID     string `json:"docketId"`
			PostedDate   string `json:"postedDate"`
			ReceiveDate  string `json:"receiveDate"`
			FirstName    string `json:"firstName"`
			LastName     string `json:"lastName"`
			Organization string `json:"organization"`
			StateCode    string `json:"stateProvinceRegion"`
		} `json:"attributes"`
	} `json:"data"`
	Included []struct {
		Type       string `json:"type"`
		Attributes struct {
			Title       string `json:"title"`
			FileFormats []struct {
				FileURL string `json:"fileUrl"`
				Format  string `json:"format"`
			} `json:"fileFormats"`
		} `json:"attributes"`
	} `json:"included"`
}

func (c *httpClient) ListDocketCommentIDs(ctx context.Context, docketID string) ([]string, error) {
	var ids []string

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("filter[docketId]", docketID)
		q.Set("page[size]", fmt.Sprint(defaultPageSize))
		q.Set("page[number]", fmt.Sprint(page))

		body, err := c.get(ctx, c.baseURL+"/comments?"+q.Encode())
		if err != nil {
			return nil, eris.Wrapf(err, "regulations: list comments page %d", page)
		}

		var resp listResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, eris.Wrapf(err, "regulations: unmarshal comments page %d", page)
		}
		for _, d := range resp.Data {
			ids = append(ids, d.ID)
		}

		zap.L().Debug("regulations: listed comment page",
			zap.String("docket_id", docketID),
			zap.Int("page", page),
			zap.Int("ids", len(ids)),
		)

		if page >= resp.Meta.TotalPages || len(resp.Data) == 0 {
			break
		}
	}

	return ids, nil
}

func (c *httpClient) GetComment(ctx context.Context, commentID string) (*Comment, error) {
	u := c.baseURL + "/comments/" + url.PathEscape(commentID) + "?include=attachments"

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, eris.Wrapf(err, "regulations: get comment %s", commentID)
	}

	var resp commentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(err, "regulations: unmarshal comment %s", commentID)
	}

	attrs := resp.Data.Attributes
	comment := &Comment{
		ID:           resp.Data.ID,
		Title:        attrs.Title,
		CommentText:  attrs.Comment,
		Category:     attrs.Category,
		DocketID:     attrs.DocketID,
		PostedDate:   attrs.PostedDate,
		ReceivedDate: attrs.ReceiveDate,
		Submitter:    joinName(attrs.FirstName, attrs.LastName),
		Organization: attrs.Organization,
		State:        attrs.StateCode,
	}

	for _, inc := range resp.Included {
		if inc.Type != "attachments" || len(inc.Attributes.FileFormats) == 0 {
			continue
		}
		ff := inc.Attributes.FileFormats[0]
		comment.Attachments = append(comment.Attachments, Attachment{
			Title:   inc.Attributes.Title,
			FileURL: ff.FileURL,
			Format:  ff.Format,
		})
	}

	return comment, nil
}

func (c *httpClient) DownloadAttachment(ctx context.Context, fileURL string) ([]byte, error) {
	body, err := c.get(ctx, fileURL)
	if err != nil {
		return nil, eris.Wrapf(err, "regulations: download attachment %s", fileURL)
	}
	return body, nil
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// get issues one rate-limited GET with exponential backoff retries on
// transient failures. Non-2xx terminal statuses are returned as errors.
func (c *httpClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("Accept", "application/vnd.api+json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, eris.Wrap(readErr, "read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("status %d: %s", resp.StatusCode, string(body))
		}
		return body, nil
	}

	return nil, lastErr
}
