package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leviosa/internal/apiclient"
	"leviosa/internal/config"
	"leviosa/internal/sourcing"
)

// resetFlags restores every flag to its default between runs of the shared command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// writeConfig points every backend at the given URLs and keeps state in a temp dir.
func writeConfig(t *testing.T, apiURL, sourcingURL string) string {
	t.Helper()
	for _, env := range []string{"LEVIOSA_API_URL", "LEVIOSA_SOURCING_API_URL", "LEVIOSA_FEATURES_URL", "LEVIOSA_STATE_DIR"} {
		t.Setenv(env, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "leviosa.yaml")
	yml := fmt.Sprintf(`api:
  base_url: %s
sourcing:
  base_url: %s
  features_url: %s
state:
  dir: %s
`, apiURL, sourcingURL, sourcingURL, filepath.Join(dir, "state"))
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))
	return path
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestLoginWhoamiLogout(t *testing.T) {
	cs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "pw" {
				writeJSONResponse(w, 401, map[string]any{"detail": "Invalid credentials"})
				return
			}
			writeJSONResponse(w, 200, map[string]any{"data": map[string]string{
				"access_token": "a1", "refresh_token": "r1", "token_type": "bearer",
			}})
		case "/api/v1/auth/me":
			if r.Header.Get("Authorization") != "Bearer a1" {
				writeJSONResponse(w, 401, map[string]any{"detail": "Not authenticated"})
				return
			}
			writeJSONResponse(w, 200, map[string]any{"data": map[string]any{
				"id": "s1", "email": "seller@example.com", "name": "Kim", "is_active": true,
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer cs.Close()
	cfgPath := writeConfig(t, cs.URL, "http://127.0.0.1:1")

	_, err := execute(t, "", "--config", cfgPath, "login", "--email", "seller@example.com", "--password", "bad")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", userMessage(err))

	out, err := execute(t, "", "--config", cfgPath, "login", "--email", "seller@example.com", "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as seller@example.com")

	out, err = execute(t, "", "--config", cfgPath, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Kim <seller@example.com>")

	_, err = execute(t, "", "--config", cfgPath, "logout")
	require.NoError(t, err)

	_, err = execute(t, "", "--config", cfgPath, "whoami")
	assert.EqualError(t, err, "not logged in")
}

func TestLogin_PasswordFromStdin(t *testing.T) {
	var got string
	cs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		got = body["password"]
		writeJSONResponse(w, 200, map[string]any{"data": map[string]string{"access_token": "a", "refresh_token": "r"}})
	}))
	defer cs.Close()
	cfgPath := writeConfig(t, cs.URL, "http://127.0.0.1:1")
	t.Setenv("LEVIOSA_PASSWORD", "")

	_, err := execute(t, "typed-secret\n", "--config", cfgPath, "login", "--email", "e@example.com")
	require.NoError(t, err)
	assert.Equal(t, "typed-secret", got)
}

func TestAutomationSet_SendsOnlyChangedFields(t *testing.T) {
	var mu sync.Mutex
	var sent map[string]any
	cs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/api/v1/automation/config" {
			mu.Lock()
			json.NewDecoder(r.Body).Decode(&sent)
			mu.Unlock()
			writeJSONResponse(w, 200, map[string]any{"data": map[string]any{"is_enabled": true, "confidence_threshold": 0.9}})
			return
		}
		http.NotFound(w, r)
	}))
	defer cs.Close()
	cfgPath := writeConfig(t, cs.URL, "http://127.0.0.1:1")

	out, err := execute(t, "", "--config", cfgPath, "automation", "set", "--confidence", "0.9", "--test-mode=false")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"confidence_threshold": 0.9, "test_mode": false}, sent)
	assert.Contains(t, out, "0.90")

	_, err = execute(t, "", "--config", cfgPath, "automation", "set")
	assert.ErrorContains(t, err, "nothing to update")

	_, err = execute(t, "", "--config", cfgPath, "automation", "set", "--confidence", "1.5")
	assert.ErrorContains(t, err, "between 0 and 1")
}

func TestInquiriesList_ValidatesFilters(t *testing.T) {
	var query string
	cs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		writeJSONResponse(w, 200, map[string]any{
			"data": []map[string]any{{
				"id": "q1", "inquiry_type": "talktalk", "status": "needs_review",
				"message_text": "배송 언제 되나요?", "created_at": "2026-10-16T09:00:00Z",
			}},
			"total": 1234, "page": 1, "page_size": 20,
		})
	}))
	defer cs.Close()
	cfgPath := writeConfig(t, cs.URL, "http://127.0.0.1:1")

	_, err := execute(t, "", "--config", cfgPath, "inquiries", "list", "--status", "bogus")
	assert.ErrorContains(t, err, `unknown status "bogus"`)

	out, err := execute(t, "", "--config", cfgPath, "inquiries", "list", "--status", "needs_review")
	require.NoError(t, err)
	assert.Equal(t, "status=needs_review", query)
	assert.Contains(t, out, "배송 언제 되나요?")
	assert.Contains(t, out, "1,234 total")
}

// fakeSourcing serves search, upload and the name feature route.
type fakeSourcing struct {
	mu       sync.Mutex
	uploaded *sourcing.UploadRequest
	named    []string
}

func (f *fakeSourcing) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/domeggook/search":
		writeJSONResponse(w, 200, map[string]any{
			"success": true,
			"items": []map[string]any{
				{"product_no": "p1", "name": "Wireless Earbuds", "price": "10,000", "image_url": "https://img/p1.jpg"},
				{"product_no": "p2", "name": "USB Cable", "price": "2000", "image_url": "https://img/p2.jpg"},
				{"product_no": "p3", "name": "Phone Case", "price": "5000", "image_url": "https://img/p3.jpg"},
			},
		})
	case "/api/optimize-name":
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.named = append(f.named, body["name"])
		f.mu.Unlock()
		writeJSONResponse(w, 200, map[string]string{"optimizedName": "최적화 " + body["name"]})
	case "/api/domeggook/products/upload-to-naver":
		var req sourcing.UploadRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.uploaded = &req
		f.mu.Unlock()
		origin := int64(9001)
		writeJSONResponse(w, 200, map[string]any{
			"success": true,
			"results": []map[string]any{{"product_no": "p1", "success": true, "origin_product_no": origin}},
		})
	default:
		http.NotFound(w, r)
	}
}

func TestSourcingWorkflow(t *testing.T) {
	fake := &fakeSourcing{}
	src := httptest.NewServer(fake)
	defer src.Close()
	cfgPath := writeConfig(t, "http://127.0.0.1:1", src.URL)

	out, err := execute(t, "", "--config", cfgPath, "sourcing", "search", "earbuds", "--min", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "3 products")
	assert.Contains(t, out, "₩10,000")

	// Accept the first, skip the second, leave the third for later.
	out, err = execute(t, "a\ns\n", "--config", cfgPath, "sourcing", "review")
	require.NoError(t, err)
	assert.Contains(t, out, "[3/3] Phone Case")

	out, err = execute(t, "", "--config", cfgPath, "sourcing", "session")
	require.NoError(t, err)
	assert.Contains(t, out, "reviewed")
	assert.Contains(t, out, "2 / 3")

	out, err = execute(t, "", "--config", cfgPath, "sourcing", "price")
	require.NoError(t, err)
	assert.Contains(t, out, "Priced 1 products")
	assert.Contains(t, out, "₩13,190")

	out, err = execute(t, "", "--config", cfgPath, "sourcing", "names")
	require.NoError(t, err)
	assert.Contains(t, out, "names: 1 succeeded, 0 failed")
	assert.Equal(t, []string{"Wireless Earbuds"}, fake.named)

	// A second run skips products that already have a name.
	out, err = execute(t, "", "--config", cfgPath, "sourcing", "names")
	require.NoError(t, err)
	assert.Contains(t, out, "already has a name")

	out, err = execute(t, "", "--config", cfgPath, "sourcing", "upload", "--fee", "6")
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded 1, failed 0")
	require.NotNil(t, fake.uploaded)
	assert.Equal(t, []sourcing.UploadItem{{No: "p1", Title: "최적화 Wireless Earbuds", CoverImage: "https://img/p1.jpg"}}, fake.uploaded.ProductsData)
	assert.InDelta(t, 0.06, fake.uploaded.NaverFeeRate, 1e-9)
	assert.InDelta(t, 0.15, fake.uploaded.MinMarginRate, 1e-9)
	assert.True(t, fake.uploaded.IncludeDetails)

	_, err = execute(t, "", "--config", cfgPath, "sourcing", "reset")
	require.NoError(t, err)
	_, err = execute(t, "", "--config", cfgPath, "sourcing", "session")
	assert.ErrorIs(t, err, errNoSession)
}

func TestSourcingSearch_Validation(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")

	_, err := execute(t, "", "--config", cfgPath, "sourcing", "search", "  ")
	assert.ErrorIs(t, err, sourcing.ErrKeywordRequired)

	_, err = execute(t, "", "--config", cfgPath, "sourcing", "search", "cable", "--min", "5000", "--max", "100")
	assert.ErrorIs(t, err, sourcing.ErrMinAboveMax)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.Canceled, "canceled"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "canceled"},
		{&sourcing.APIError{Status: 429, Message: "Usage limit reached"}, "usage limit reached: Usage limit reached"},
		{&sourcing.APIError{Status: 500, Message: "Upload to Naver failed"}, "Upload to Naver failed"},
		{&apiclient.APIError{Status: 404, Message: "Inquiry not found"}, "Inquiry not found"},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, userMessage(tt.err))
	}
}

func TestCommandTree(t *testing.T) {
	want := map[string][]string{
		"naver":      {"connect", "disconnect", "status"},
		"talktalk":   {"connect", "disconnect", "status"},
		"automation": {"disable", "enable", "set", "show"},
		"inquiries":  {"approve", "edit", "list", "reject", "show"},
		"dashboard":  {"activity", "stats"},
		"sourcing":   {"accept-all", "covers", "names", "price", "reset", "review", "search", "session", "upload"},
	}
	for parent, subs := range want {
		cmd, _, err := rootCmd.Find([]string{parent})
		require.NoError(t, err, parent)
		var got []string
		for _, c := range cmd.Commands() {
			got = append(got, c.Name())
		}
		assert.ElementsMatch(t, subs, got, parent)
	}
	for _, name := range []string{"login", "logout", "whoami", "register", "serve"} {
		_, _, err := rootCmd.Find([]string{name})
		assert.NoError(t, err, name)
	}
}

type recordingLimits struct {
	got []map[string]int
}

func (r *recordingLimits) SetLimits(limits map[string]int) { r.got = append(r.got, limits) }

func TestApplyLimits_RejectsInvalidReload(t *testing.T) {
	meter := &recordingLimits{}
	next := config.DefaultConfig()
	next.Server.SessionSecret = strings.Repeat("s", config.MinSessionSecretLen)

	next.Usage.Limits = map[string]int{"cover_generation": 5}
	assert.True(t, applyLimits(meter, next))

	bad := *next
	bad.Usage.Limits = map[string]int{"cover_generation": -1}
	assert.False(t, applyLimits(meter, &bad))

	require.Len(t, meter.got, 1)
	assert.Equal(t, map[string]int{"cover_generation": 5}, meter.got[0])
}
