package sourcing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leviosa/internal/apiclient"
	"leviosa/internal/credentials"
	"leviosa/internal/localstore"
)

type staticTokens string

func (s staticTokens) AccessToken() (string, bool) { return string(s), s != "" }

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	return NewClient(srv.URL, srv.URL, 5*time.Second, opts...)
}

func TestSearch_SendsFiltersAndFallsBackToItems(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/domeggook/search", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true,"products":[],"items":[{"product_no":"1","name":"shoe","price":"12,000"}]}`)
	}))
	defer srv.Close()

	req, err := BuildSearchRequest("shoes", "10", "1000", true, "")
	require.NoError(t, err)

	resp, err := newTestClient(srv, WithTokens(staticTokens("tok"))).Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "shoes", body["keyword"])
	assert.Equal(t, 10.0, body["min_price"])
	assert.Equal(t, 1000.0, body["max_price"])
	assert.Equal(t, true, body["free_shipping"])
	assert.NotContains(t, body, "sort")

	results := resp.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "12,000", results[0].Price)
}

func TestSearch_EmptyOptionalsOmitted(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		io.WriteString(w, `{"success":true,"products":[]}`)
	}))
	defer srv.Close()

	req, err := BuildSearchRequest("shoes", "", "", false, "")
	require.NoError(t, err)
	_, err = newTestClient(srv).Search(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, raw, 1)
	assert.Contains(t, raw, "keyword")
}

func TestSearch_ErrorUsesBodyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream market unavailable")
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Search(context.Background(), SearchRequest{Keyword: "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream market unavailable", apiErr.Message)
}

func TestUpload(t *testing.T) {
	var got UploadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/domeggook/products/upload-to-naver", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"success":true,"message":"ok","results":[
			{"product_no":"1","success":true,"origin_product_no":99,"error":null},
			{"product_no":"2","success":false,"origin_product_no":null,"error":"rejected"}]}`)
	}))
	defer srv.Close()

	items := []UploadItem{{No: "1", Title: "a"}, {No: "2", Title: "b"}}
	resp, err := newTestClient(srv).Upload(context.Background(), NewUploadRequest(items, 5.5, 15))
	require.NoError(t, err)

	assert.Equal(t, items, got.ProductsData)
	assert.InDelta(t, 0.055, got.NaverFeeRate, 1e-9)
	ok, failed := resp.Counts()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
	require.NotNil(t, resp.Results[0].OriginProductNo)
	assert.Equal(t, int64(99), *resp.Results[0].OriginProductNo)
}

func TestUpload_ErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error field", `{"error":"store not connected"}`, "store not connected"},
		{"no error field", `{"detail":"x"}`, "Upload to Naver failed"},
		{"not json", `<html>`, "Upload failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv).Upload(context.Background(), NewUploadRequest(nil, 0, 0))
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.want, apiErr.Message)
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		})
	}
}

func TestOptimizeName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/optimize-name", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "운동화 신발", body["name"])
		assert.Equal(t, "shoes", body["category"])
		io.WriteString(w, `{"optimizedName":"남성 운동화"}`)
	}))
	defer srv.Close()

	name, err := newTestClient(srv, WithTokens(staticTokens("tok"))).OptimizeName(context.Background(), "운동화 신발", "shoes")
	require.NoError(t, err)
	assert.Equal(t, "남성 운동화", name)
}

func TestOptimizeName_LimitReached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":"Usage limit reached","used":3,"limit":3}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).OptimizeName(context.Background(), "n", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsLimitReached())
	assert.Equal(t, "Usage limit reached", apiErr.Message)
}

// featureBackend serves the CS refresh route and the feature routes. The
// feature routes accept only the bearer "fresh".
func featureBackend(t *testing.T, refreshStatus int) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var refreshCalls, featureCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == apiclient.RefreshPath {
			refreshCalls.Add(1)
			w.WriteHeader(refreshStatus)
			io.WriteString(w, `{"data":{"access_token":"fresh","refresh_token":"r2"}}`)
			return
		}
		featureCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":"Authentication required"}`)
			return
		}
		switch r.URL.Path {
		case "/api/optimize-name":
			io.WriteString(w, `{"optimizedName":"새 이름"}`)
		case "/api/optimize-cover":
			io.WriteString(w, `{"image":"QUJD","mimeType":"image/png"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &refreshCalls, &featureCalls
}

func expiredSession(srvURL string) (*credentials.Store, *apiclient.Client) {
	store := credentials.NewStore(localstore.NewMemoryKV(0))
	store.SetTokens(credentials.TokenPair{AccessToken: "expired", RefreshToken: "ref"})
	return store, apiclient.New(srvURL, store, 5*time.Second)
}

func TestFeatureCalls_RefreshOnUnauthorized(t *testing.T) {
	srv, refreshCalls, featureCalls := featureBackend(t, http.StatusOK)
	store, api := expiredSession(srv.URL)
	c := newTestClient(srv, WithTokens(store), WithRefresher(api))

	name, err := c.OptimizeName(context.Background(), "이름", "")
	require.NoError(t, err)
	assert.Equal(t, "새 이름", name)
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, int32(2), featureCalls.Load())

	// The rotated bearer is used directly from now on.
	cover, err := c.OptimizeCover(context.Background(), "https://img/1.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,QUJD", cover)
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, int32(3), featureCalls.Load())
}

func TestFeatureCalls_RefreshRejectedRequiresReauth(t *testing.T) {
	srv, refreshCalls, featureCalls := featureBackend(t, http.StatusUnauthorized)
	store, api := expiredSession(srv.URL)
	c := newTestClient(srv, WithTokens(store), WithRefresher(api))

	_, err := c.OptimizeName(context.Background(), "이름", "")
	assert.ErrorIs(t, err, apiclient.ErrReauthRequired)
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, int32(1), featureCalls.Load())
	assert.False(t, store.HasAccessToken())

	// Without credentials there is nothing to refresh.
	_, err = c.OptimizeName(context.Background(), "이름", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, int32(1), refreshCalls.Load())
}

func TestFeatureCalls_NoRefresherReturns401(t *testing.T) {
	srv, refreshCalls, _ := featureBackend(t, http.StatusOK)
	_, err := newTestClient(srv, WithTokens(staticTokens("expired"))).OptimizeName(context.Background(), "n", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Authentication required", apiErr.Message)
	assert.Zero(t, refreshCalls.Load())
}

func TestOptimizeCover_ReturnsDataURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/optimize-cover", r.URL.Path)
		io.WriteString(w, `{"image":"QUJD","mimeType":"image/png"}`)
	}))
	defer srv.Close()

	url, err := newTestClient(srv).OptimizeCover(context.Background(), "https://img/1.jpg", "shoe")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,QUJD", url)
}

func TestOptimizeCover_DefaultError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).OptimizeCover(context.Background(), "u", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Cover optimization failed", apiErr.Message)
}

func TestClient_Cancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(srv).Search(ctx, SearchRequest{Keyword: "x"})
	require.Error(t, err)
	assert.True(t, IsCanceled(err))

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
