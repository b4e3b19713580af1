package cs

import "encoding/json"

// SuccessResponse wraps a single payload.
type SuccessResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message"`
}

// ListResponse wraps a page of results.
type ListResponse[T any] struct {
	Data     []T `json:"data"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// === Auth ===

type SellerRegister struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type SellerLogin struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Seller struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// === Naver ===

type NaverConnectRequest struct {
	NaverClientID string `json:"naver_client_id"`
	ClientSecret  string `json:"client_secret"`
	StoreID       string `json:"store_id"`
}

type NaverConnection struct {
	ID            string `json:"id"`
	SellerID      string `json:"seller_id"`
	NaverClientID string `json:"naver_client_id"`
	StoreID       string `json:"store_id"`
	IsConnected   bool   `json:"is_connected"`
	CreatedAt     string `json:"created_at"`
}

type NaverConnectionStatus struct {
	IsConnected   bool    `json:"is_connected"`
	NaverClientID *string `json:"naver_client_id"`
	StoreID       *string `json:"store_id"`
}

// === TalkTalk ===

type TalkTalkConnectRequest struct {
	TalkTalkToken string `json:"talktalk_token"`
}

type TalkTalkConnectResponse struct {
	TalkTalkEnabled bool   `json:"talktalk_enabled"`
	WebhookURL      string `json:"webhook_url"`
}

type TalkTalkStatus struct {
	TalkTalkEnabled bool    `json:"talktalk_enabled"`
	WebhookURL      *string `json:"webhook_url"`
}

// === Automation ===

type AutomationConfig struct {
	ID                   string  `json:"id"`
	SellerID             string  `json:"seller_id"`
	IsEnabled            bool    `json:"is_enabled"`
	AutoPostEnabled      bool    `json:"auto_post_enabled"`
	ConfidenceThreshold  float64 `json:"confidence_threshold"`
	PollIntervalMinutes  int     `json:"poll_interval_minutes"`
	MaxAutoPostsPerCycle int     `json:"max_auto_posts_per_cycle"`
	PolicyText           *string `json:"policy_text"`
	FAQJSON              *string `json:"faq_json"`
	TestMode             bool    `json:"test_mode"`
	NaverFeeRate         float64 `json:"naver_fee_rate"`
	MinMarginRate        float64 `json:"min_margin_rate"`
	CreatedAt            string  `json:"created_at"`
	UpdatedAt            string  `json:"updated_at"`
}

// AutomationConfigUpdate is a partial update; nil fields are left unchanged.
type AutomationConfigUpdate struct {
	AutoPostEnabled      *bool    `json:"auto_post_enabled,omitempty"`
	ConfidenceThreshold  *float64 `json:"confidence_threshold,omitempty"`
	PollIntervalMinutes  *int     `json:"poll_interval_minutes,omitempty"`
	MaxAutoPostsPerCycle *int     `json:"max_auto_posts_per_cycle,omitempty"`
	PolicyText           *string  `json:"policy_text,omitempty"`
	FAQJSON              *string  `json:"faq_json,omitempty"`
	TestMode             *bool    `json:"test_mode,omitempty"`
	NaverFeeRate         *float64 `json:"naver_fee_rate,omitempty"`
	MinMarginRate        *float64 `json:"min_margin_rate,omitempty"`
}

type AutomationToggle struct {
	IsEnabled bool `json:"is_enabled"`
}

// === Inquiries ===

type InquiryStatus string

const (
	StatusPending         InquiryStatus = "pending"
	StatusProcessing      InquiryStatus = "processing"
	StatusNeedsReview     InquiryStatus = "needs_review"
	StatusAutoPosted      InquiryStatus = "auto_posted"
	StatusAutoPostedRisky InquiryStatus = "auto_posted_risky"
	StatusManuallyPosted  InquiryStatus = "manually_posted"
	StatusRejected        InquiryStatus = "rejected"
	StatusFailed          InquiryStatus = "failed"
)

// Valid reports whether s is a known status.
func (s InquiryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusNeedsReview, StatusAutoPosted,
		StatusAutoPostedRisky, StatusManuallyPosted, StatusRejected, StatusFailed:
		return true
	}
	return false
}

type InquiryType string

const (
	TypeCustomerInquiry InquiryType = "customer_inquiry"
	TypeProductQnA      InquiryType = "product_qna"
	TypeTalkTalk        InquiryType = "talktalk"
)

// Valid reports whether t is a known inquiry type.
func (t InquiryType) Valid() bool {
	switch t {
	case TypeCustomerInquiry, TypeProductQnA, TypeTalkTalk:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type Inquiry struct {
	ID             string        `json:"id"`
	SellerID       string        `json:"seller_id"`
	NaverID        string        `json:"naver_id"`
	InquiryType    InquiryType   `json:"inquiry_type"`
	Title          *string       `json:"title"`
	MessageText    string        `json:"message_text"`
	ProductInfo    *string       `json:"product_info"`
	NaverCreatedAt *string       `json:"naver_created_at"`
	TalkTalkUserID *string       `json:"talktalk_user_id"`
	Status         InquiryStatus `json:"status"`
	CreatedAt      string        `json:"created_at"`
	UpdatedAt      string        `json:"updated_at"`
}

type AIResponseDetail struct {
	ID               string          `json:"id"`
	Category         *string         `json:"category"`
	RiskLevel        *RiskLevel      `json:"risk_level"`
	Confidence       *float64        `json:"confidence"`
	ShouldAutoPost   bool            `json:"should_auto_post"`
	Answer           string          `json:"answer"`
	Needs            json.RawMessage `json:"needs"`
	Reasoning        *string         `json:"reasoning"`
	SafetyOverridden bool            `json:"safety_overridden"`
	SafetyNote       *string         `json:"safety_note"`
	ModelName        *string         `json:"model_name"`
}

type InquiryDetail struct {
	Inquiry    Inquiry           `json:"inquiry"`
	AIResponse *AIResponseDetail `json:"ai_response"`
}

type InquiryEditRequest struct {
	Answer string `json:"answer"`
}

type ApproveResult struct {
	PostedAnswerID string `json:"posted_answer_id"`
}

// InquiryListParams filters the inquiry list. Zero values are omitted from the query.
type InquiryListParams struct {
	Status      InquiryStatus `url:"status,omitempty"`
	InquiryType InquiryType   `url:"inquiry_type,omitempty"`
	Page        int           `url:"page,omitempty"`
	PageSize    int           `url:"page_size,omitempty"`
}

// === Dashboard ===

type DashboardPeriod string

const (
	PeriodToday DashboardPeriod = "today"
	Period7d    DashboardPeriod = "7d"
	Period30d   DashboardPeriod = "30d"
	PeriodAll   DashboardPeriod = "all"
)

type DashboardStats struct {
	TotalInquiries int `json:"total_inquiries"`
	AutoPosted     int `json:"auto_posted"`
	NeedsReview    int `json:"needs_review"`
	Rejected       int `json:"rejected"`
	ManuallyPosted int `json:"manually_posted"`
	Failed         int `json:"failed"`
}

type ActivityItem struct {
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data"`
	CreatedAt string         `json:"created_at"`
}
