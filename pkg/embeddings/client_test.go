package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient("test-key", "test-model", WithBaseURL(srv.URL), WithBatchSize(2))
	return srv, client
}

func serveVectors(w http.ResponseWriter, r *http.Request, shuffle bool) {
	var req embeddingRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	resp := embeddingResponse{}
	for i := range req.Input {
		resp.Data = append(resp.Data, embeddingDatum{
			Index:     i,
			Embedding: []float64{float64(len(req.Input[i]))},
		})
	}
	if shuffle && len(resp.Data) > 1 {
		resp.Data[0], resp.Data[1] = resp.Data[1], resp.Data[0]
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func TestEmbedBatchesAndPreservesOrder(t *testing.T) {
	var requests atomic.Int64
	_, client := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		serveVectors(w, r, true)
	})

	vectors, err := client.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vectors, 5)

	// Vector i encodes len(text i) even though the server returns each
	// batch out of order.
	for i, want := range []float64{1, 2, 3, 4, 5} {
		assert.Equal(t, want, vectors[i][0])
	}
	// Batch size 2 over 5 inputs.
	assert.Equal(t, int64(3), requests.Load())
}

func TestEmbedRetriesTransientStatus(t *testing.T) {
	var requests atomic.Int64
	_, client := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		serveVectors(w, r, false)
	})

	vectors, err := client.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int64(2), requests.Load())
}

func TestEmbedNonRetryableStatus(t *testing.T) {
	_, client := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "bad key"}`)
	})

	_, err := client.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestEmbedCountMismatch(t *testing.T) {
	_, client := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embeddingResponse{
			Data: []embeddingDatum{{Index: 0, Embedding: []float64{1}}},
		})
	})

	_, err := client.Embed(context.Background(), []string{"x", "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 inputs")
}

func TestEmbedEmptyInput(t *testing.T) {
	client := NewClient("k", "m")
	vectors, err := client.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
