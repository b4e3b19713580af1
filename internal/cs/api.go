// Package cs exposes the CS backend endpoints grouped by area.
package cs

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/go-querystring/query"

	"leviosa/internal/apiclient"
	"leviosa/internal/credentials"
	"leviosa/internal/logging"
)

// DefaultActivityLimit is used when no activity limit is given.
const DefaultActivityLimit = 20

// API groups every CS endpoint.
type API struct {
	Auth       *AuthAPI
	Naver      *NaverAPI
	TalkTalk   *TalkTalkAPI
	Automation *AutomationAPI
	Inquiries  *InquiriesAPI
	Dashboard  *DashboardAPI
}

// New builds the endpoint groups over client. tokens receives the pair on login.
func New(client *apiclient.Client, tokens apiclient.TokenStore) *API {
	return &API{
		Auth:       &AuthAPI{c: client, tokens: tokens},
		Naver:      &NaverAPI{c: client},
		TalkTalk:   &TalkTalkAPI{c: client},
		Automation: &AutomationAPI{c: client},
		Inquiries:  &InquiriesAPI{c: client},
		Dashboard:  &DashboardAPI{c: client},
	}
}

// buildQuery encodes url-tagged params, returning "" when nothing is set.
func buildQuery(params any) string {
	v, err := query.Values(params)
	if err != nil || len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func get[T any](ctx context.Context, c *apiclient.Client, path string) (*T, error) {
	var out T
	if _, err := c.Do(ctx, path, apiclient.RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func send[T any](ctx context.Context, c *apiclient.Client, method, path string, body any, skipAuth bool) (*T, error) {
	var out T
	if _, err := c.Do(ctx, path, apiclient.RequestOptions{Method: method, Body: body, SkipAuth: skipAuth}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthAPI covers registration, login, refresh, and the current user.
type AuthAPI struct {
	c      *apiclient.Client
	tokens apiclient.TokenStore
}

func (a *AuthAPI) Register(ctx context.Context, req SellerRegister) (*SuccessResponse[Seller], error) {
	return send[SuccessResponse[Seller]](ctx, a.c, http.MethodPost, "/api/v1/auth/register", req, true)
}

// Login exchanges credentials for a token pair and stores it.
func (a *AuthAPI) Login(ctx context.Context, req SellerLogin) (*SuccessResponse[credentials.TokenPair], error) {
	resp, err := send[SuccessResponse[credentials.TokenPair]](ctx, a.c, http.MethodPost, "/api/v1/auth/login", req, true)
	if err != nil {
		return nil, err
	}
	if a.tokens != nil {
		a.tokens.SetTokens(resp.Data)
	}
	logging.Auth("logged in as %s", req.Email)
	return resp, nil
}

// Refresh exchanges a refresh token explicitly. The client also does this on 401.
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*SuccessResponse[credentials.TokenPair], error) {
	return send[SuccessResponse[credentials.TokenPair]](ctx, a.c, http.MethodPost, apiclient.RefreshPath,
		map[string]string{"refresh_token": refreshToken}, true)
}

// Logout forgets the stored pair.
func (a *AuthAPI) Logout() {
	if a.tokens != nil {
		a.tokens.ClearTokens()
	}
}

func (a *AuthAPI) Me(ctx context.Context) (*SuccessResponse[Seller], error) {
	return get[SuccessResponse[Seller]](ctx, a.c, "/api/v1/auth/me")
}

// NaverAPI manages the marketplace account connection.
type NaverAPI struct{ c *apiclient.Client }

func (n *NaverAPI) Connect(ctx context.Context, req NaverConnectRequest) (*SuccessResponse[NaverConnection], error) {
	return send[SuccessResponse[NaverConnection]](ctx, n.c, http.MethodPost, "/api/v1/naver/connect", req, false)
}

func (n *NaverAPI) Status(ctx context.Context) (*SuccessResponse[NaverConnectionStatus], error) {
	return get[SuccessResponse[NaverConnectionStatus]](ctx, n.c, "/api/v1/naver/status")
}

func (n *NaverAPI) Disconnect(ctx context.Context) error {
	_, err := n.c.Do(ctx, "/api/v1/naver/disconnect", apiclient.RequestOptions{Method: http.MethodDelete}, nil)
	return err
}

// TalkTalkAPI manages the messaging channel connection.
type TalkTalkAPI struct{ c *apiclient.Client }

func (t *TalkTalkAPI) Connect(ctx context.Context, req TalkTalkConnectRequest) (*SuccessResponse[TalkTalkConnectResponse], error) {
	return send[SuccessResponse[TalkTalkConnectResponse]](ctx, t.c, http.MethodPost, "/api/v1/talktalk/connect", req, false)
}

func (t *TalkTalkAPI) Status(ctx context.Context) (*SuccessResponse[TalkTalkStatus], error) {
	return get[SuccessResponse[TalkTalkStatus]](ctx, t.c, "/api/v1/talktalk/status")
}

func (t *TalkTalkAPI) Disconnect(ctx context.Context) error {
	_, err := t.c.Do(ctx, "/api/v1/talktalk/disconnect", apiclient.RequestOptions{Method: http.MethodDelete}, nil)
	return err
}

// AutomationAPI reads and updates auto-reply settings.
type AutomationAPI struct{ c *apiclient.Client }

func (a *AutomationAPI) GetConfig(ctx context.Context) (*SuccessResponse[AutomationConfig], error) {
	return get[SuccessResponse[AutomationConfig]](ctx, a.c, "/api/v1/automation/config")
}

func (a *AutomationAPI) UpdateConfig(ctx context.Context, update AutomationConfigUpdate) (*SuccessResponse[AutomationConfig], error) {
	return send[SuccessResponse[AutomationConfig]](ctx, a.c, http.MethodPut, "/api/v1/automation/config", update, false)
}

func (a *AutomationAPI) Toggle(ctx context.Context, enabled bool) (*SuccessResponse[AutomationConfig], error) {
	return send[SuccessResponse[AutomationConfig]](ctx, a.c, http.MethodPost, "/api/v1/automation/toggle", AutomationToggle{IsEnabled: enabled}, false)
}

// InquiriesAPI lists and acts on customer inquiries.
type InquiriesAPI struct{ c *apiclient.Client }

func inquiryPath(id, action string) string {
	p := "/api/v1/inquiries/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (i *InquiriesAPI) List(ctx context.Context, params InquiryListParams) (*ListResponse[Inquiry], error) {
	return get[ListResponse[Inquiry]](ctx, i.c, "/api/v1/inquiries"+buildQuery(params))
}

func (i *InquiriesAPI) Detail(ctx context.Context, id string) (*SuccessResponse[InquiryDetail], error) {
	return get[SuccessResponse[InquiryDetail]](ctx, i.c, inquiryPath(id, ""))
}

func (i *InquiriesAPI) Approve(ctx context.Context, id string) (*SuccessResponse[ApproveResult], error) {
	return send[SuccessResponse[ApproveResult]](ctx, i.c, http.MethodPost, inquiryPath(id, "approve"), nil, false)
}

func (i *InquiriesAPI) Reject(ctx context.Context, id string) (*SuccessResponse[Inquiry], error) {
	return send[SuccessResponse[Inquiry]](ctx, i.c, http.MethodPost, inquiryPath(id, "reject"), nil, false)
}

func (i *InquiriesAPI) Edit(ctx context.Context, id, answer string) (*SuccessResponse[AIResponseDetail], error) {
	return send[SuccessResponse[AIResponseDetail]](ctx, i.c, http.MethodPut, inquiryPath(id, "edit"), InquiryEditRequest{Answer: answer}, false)
}

// DashboardAPI reads summary statistics and recent activity.
type DashboardAPI struct{ c *apiclient.Client }

func (d *DashboardAPI) Stats(ctx context.Context, period DashboardPeriod) (*SuccessResponse[DashboardStats], error) {
	params := struct {
		Period DashboardPeriod `url:"period,omitempty"`
	}{period}
	return get[SuccessResponse[DashboardStats]](ctx, d.c, "/api/v1/dashboard/stats"+buildQuery(params))
}

func (d *DashboardAPI) Activity(ctx context.Context, limit int) (*SuccessResponse[[]ActivityItem], error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	params := struct {
		Limit int `url:"limit"`
	}{limit}
	return get[SuccessResponse[[]ActivityItem]](ctx, d.c, "/api/v1/dashboard/activity"+buildQuery(params))
}
