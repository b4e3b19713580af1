package cs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leviosa/internal/apiclient"
	"leviosa/internal/credentials"
	"leviosa/internal/localstore"
)

type recorded struct {
	method, path, rawQuery, auth string
	body                         map[string]any
}

func newTestAPI(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*API, *credentials.Store, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, rawQuery: r.URL.RawQuery, auth: r.Header.Get("Authorization")}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			require.NoError(t, json.Unmarshal(b, &rec.body))
		}
		calls = append(calls, rec)
		respond(w, r)
	}))
	t.Cleanup(srv.Close)

	store := credentials.NewStore(localstore.NewMemoryKV(0))
	client := apiclient.New(srv.URL, store, 5*time.Second)
	return New(client, store), store, &calls
}

func okJSON(body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) { io.WriteString(w, body) }
}

func TestAuth_LoginStoresTokens(t *testing.T) {
	api, store, calls := newTestAPI(t, okJSON(`{"data":{"access_token":"a","refresh_token":"r","token_type":"bearer"},"message":"ok"}`))
	store.SetTokens(credentials.TokenPair{AccessToken: "stale", RefreshToken: "stale"})

	resp, err := api.Auth.Login(context.Background(), SellerLogin{Email: "me@shop.kr", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Data.AccessToken)

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/api/v1/auth/login", c.path)
	assert.Empty(t, c.auth, "login never sends credentials")
	assert.Equal(t, "me@shop.kr", c.body["email"])

	acc, _ := store.AccessToken()
	assert.Equal(t, "a", acc)

	api.Auth.Logout()
	assert.False(t, store.HasAccessToken())
}

func TestAuth_LoginNullBodyKeepsTokens(t *testing.T) {
	api, store, _ := newTestAPI(t, okJSON(`null`))
	store.SetTokens(credentials.TokenPair{AccessToken: "old", RefreshToken: "old-ref"})

	_, err := api.Auth.Login(context.Background(), SellerLogin{Email: "me@shop.kr", Password: "pw"})
	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Response parsing failed", apiErr.Message)

	acc, _ := store.AccessToken()
	assert.Equal(t, "old", acc, "a failed login leaves the stored pair alone")
}

func TestAuth_RegisterAndMe(t *testing.T) {
	api, store, calls := newTestAPI(t, okJSON(`{"data":{"id":"s1","email":"e","name":"n","is_active":true},"message":""}`))
	store.SetTokens(credentials.TokenPair{AccessToken: "tok", RefreshToken: "r"})

	_, err := api.Auth.Register(context.Background(), SellerRegister{Email: "e", Password: "p", Name: "n"})
	require.NoError(t, err)
	me, err := api.Auth.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s1", me.Data.ID)

	assert.Equal(t, "/api/v1/auth/register", (*calls)[0].path)
	assert.Empty(t, (*calls)[0].auth)
	assert.Equal(t, "/api/v1/auth/me", (*calls)[1].path)
	assert.Equal(t, "Bearer tok", (*calls)[1].auth)
}

func TestConnections(t *testing.T) {
	api, _, calls := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		io.WriteString(w, `{"data":{"is_connected":true,"talktalk_enabled":true,"webhook_url":"https://hook"},"message":""}`)
	})
	ctx := context.Background()

	_, err := api.Naver.Connect(ctx, NaverConnectRequest{NaverClientID: "cid", ClientSecret: "sec", StoreID: "store"})
	require.NoError(t, err)
	st, err := api.Naver.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Data.IsConnected)
	require.NoError(t, api.Naver.Disconnect(ctx))

	_, err = api.TalkTalk.Connect(ctx, TalkTalkConnectRequest{TalkTalkToken: "tt"})
	require.NoError(t, err)
	tts, err := api.TalkTalk.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, tts.Data.WebhookURL)
	assert.Equal(t, "https://hook", *tts.Data.WebhookURL)
	require.NoError(t, api.TalkTalk.Disconnect(ctx))

	want := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/naver/connect"},
		{http.MethodGet, "/api/v1/naver/status"},
		{http.MethodDelete, "/api/v1/naver/disconnect"},
		{http.MethodPost, "/api/v1/talktalk/connect"},
		{http.MethodGet, "/api/v1/talktalk/status"},
		{http.MethodDelete, "/api/v1/talktalk/disconnect"},
	}
	require.Len(t, *calls, len(want))
	for i, w := range want {
		assert.Equal(t, w.method, (*calls)[i].method)
		assert.Equal(t, w.path, (*calls)[i].path)
	}
	assert.Equal(t, "cid", (*calls)[0].body["naver_client_id"])
	assert.Equal(t, "tt", (*calls)[3].body["talktalk_token"])
}

func TestAutomation_PartialUpdate(t *testing.T) {
	api, _, calls := newTestAPI(t, okJSON(`{"data":{"is_enabled":true,"confidence_threshold":0.8},"message":""}`))
	ctx := context.Background()

	threshold := 0.9
	_, err := api.Automation.UpdateConfig(ctx, AutomationConfigUpdate{ConfidenceThreshold: &threshold})
	require.NoError(t, err)
	_, err = api.Automation.Toggle(ctx, false)
	require.NoError(t, err)
	cfg, err := api.Automation.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Data.ConfidenceThreshold)

	update := (*calls)[0]
	assert.Equal(t, http.MethodPut, update.method)
	assert.Equal(t, "/api/v1/automation/config", update.path)
	assert.Equal(t, map[string]any{"confidence_threshold": 0.9}, update.body)

	toggle := (*calls)[1]
	assert.Equal(t, "/api/v1/automation/toggle", toggle.path)
	assert.Equal(t, map[string]any{"is_enabled": false}, toggle.body)
}

func TestInquiries(t *testing.T) {
	api, _, calls := newTestAPI(t, okJSON(`{"data":[],"total":0,"page":1,"page_size":20}`))
	ctx := context.Background()

	_, err := api.Inquiries.List(ctx, InquiryListParams{})
	require.NoError(t, err)
	_, err = api.Inquiries.List(ctx, InquiryListParams{Status: StatusNeedsReview, Page: 2, PageSize: 10})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/inquiries", (*calls)[0].path)
	assert.Empty(t, (*calls)[0].rawQuery)
	assert.Equal(t, "page=2&page_size=10&status=needs_review", (*calls)[1].rawQuery)
}

func TestInquiryActions(t *testing.T) {
	api, _, calls := newTestAPI(t, okJSON(`{"data":{},"message":""}`))
	ctx := context.Background()

	_, err := api.Inquiries.Detail(ctx, "inq-1")
	require.NoError(t, err)
	_, err = api.Inquiries.Approve(ctx, "inq-1")
	require.NoError(t, err)
	_, err = api.Inquiries.Reject(ctx, "inq-1")
	require.NoError(t, err)
	_, err = api.Inquiries.Edit(ctx, "inq 2", "new answer")
	require.NoError(t, err)

	got := *calls
	assert.Equal(t, "/api/v1/inquiries/inq-1", got[0].path)
	assert.Equal(t, http.MethodPost, got[1].method)
	assert.Equal(t, "/api/v1/inquiries/inq-1/approve", got[1].path)
	assert.Equal(t, "/api/v1/inquiries/inq-1/reject", got[2].path)
	assert.Equal(t, http.MethodPut, got[3].method)
	assert.Equal(t, "/api/v1/inquiries/inq 2/edit", got[3].path)
	assert.Equal(t, "new answer", got[3].body["answer"])
}

func TestDashboard(t *testing.T) {
	api, _, calls := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/dashboard/stats" {
			io.WriteString(w, `{"data":{"total_inquiries":12,"auto_posted":5},"message":""}`)
			return
		}
		io.WriteString(w, `{"data":[{"event_type":"poll","event_data":{"total_fetched":3},"created_at":"2026-01-01T00:00:00Z"}],"message":""}`)
	})
	ctx := context.Background()

	stats, err := api.Dashboard.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Data.TotalInquiries)
	_, err = api.Dashboard.Stats(ctx, Period7d)
	require.NoError(t, err)
	act, err := api.Dashboard.Activity(ctx, 0)
	require.NoError(t, err)
	require.Len(t, act.Data, 1)
	assert.Equal(t, 3.0, act.Data[0].EventData["total_fetched"])

	assert.Empty(t, (*calls)[0].rawQuery)
	assert.Equal(t, "period=7d", (*calls)[1].rawQuery)
	assert.Equal(t, "limit=20", (*calls)[2].rawQuery)
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, StatusAutoPostedRisky.Valid())
	assert.False(t, InquiryStatus("archived").Valid())
	assert.True(t, TypeProductQnA.Valid())
	assert.False(t, InquiryType("email").Valid())
}
