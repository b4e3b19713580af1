package sourcing

import "leviosa/internal/pricing"

// DefaultSort is the search ordering used when none is chosen.
const DefaultSort = "sales_rank"

// Product is a sourced product as returned by search. Optimized derivatives
// live on the Session, never on the Product.
type Product struct {
	ProductNo    string  `json:"product_no"`
	Name         string  `json:"name"`
	Price        string  `json:"price"`
	ImageURL     string  `json:"image_url"`
	URL          string  `json:"url"`
	Category     string  `json:"category"`
	Description  string  `json:"description"`
	Rating       float64 `json:"rating"`
	ReviewCount  int     `json:"review_count"`
	Seller       string  `json:"seller"`
	ShippingInfo string  `json:"shipping_info"`
}

// SearchRequest is the body of a product search. Unset filters are omitted.
type SearchRequest struct {
	Keyword      string   `json:"keyword"`
	MinPrice     *float64 `json:"min_price,omitempty"`
	MaxPrice     *float64 `json:"max_price,omitempty"`
	FreeShipping bool     `json:"free_shipping,omitempty"`
	Sort         string   `json:"sort,omitempty"`
}

// SearchInfo describes how the backend ran a search.
type SearchInfo struct {
	Keyword            string          `json:"keyword"`
	SortOption         string          `json:"sort_option"`
	RequestedMax       int             `json:"requested_max"`
	ActualCount        int             `json:"actual_count"`
	TotalPagesSearched int             `json:"total_pages_searched"`
	Market             string          `json:"market"`
	SearchConditions   map[string]bool `json:"search_conditions"`
}

// SearchResponse is the search result envelope.
type SearchResponse struct {
	Success    bool        `json:"success"`
	Products   []Product   `json:"products"`
	Items      []Product   `json:"items"`
	Message    string      `json:"message"`
	SearchInfo *SearchInfo `json:"search_info,omitempty"`
}

// Results returns products, falling back to items when products is empty.
func (r *SearchResponse) Results() []Product {
	if len(r.Products) > 0 {
		return r.Products
	}
	if r.Items != nil {
		return r.Items
	}
	return []Product{}
}

// UploadItem is one product's override data for upload.
type UploadItem struct {
	No         string `json:"no"`
	Title      string `json:"title,omitempty"`
	CoverImage string `json:"cover_image,omitempty"`
}

// UploadRequest is the bulk upload body. Rates are fractions, not percents.
type UploadRequest struct {
	ProductsData   []UploadItem `json:"products_data"`
	IncludeDetails bool         `json:"include_details"`
	NaverFeeRate   float64      `json:"naver_fee_rate"`
	MinMarginRate  float64      `json:"min_margin_rate"`
}

// NewUploadRequest builds an upload body from percent rates.
func NewUploadRequest(items []UploadItem, feeRatePct, marginRatePct float64) UploadRequest {
	if items == nil {
		items = []UploadItem{}
	}
	return UploadRequest{
		ProductsData:   items,
		IncludeDetails: true,
		NaverFeeRate:   feeRatePct / 100,
		MinMarginRate:  marginRatePct / 100,
	}
}

// UploadResult is the per-product upload outcome.
type UploadResult struct {
	ProductNo       string  `json:"product_no"`
	Success         bool    `json:"success"`
	OriginProductNo *int64  `json:"origin_product_no"`
	Error           *string `json:"error"`
}

// UploadResponse is the bulk upload envelope.
type UploadResponse struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Results    []UploadResult `json:"results"`
	Error      *string        `json:"error"`
	StatusCode *int           `json:"status_code"`
}

// Counts returns how many uploads succeeded and failed.
func (r *UploadResponse) Counts() (succeeded, failed int) {
	for _, res := range r.Results {
		if res.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// BuildUploadItems prefers optimized names and covers over the originals.
func BuildUploadItems(products []Product, names, covers map[string]string) []UploadItem {
	items := make([]UploadItem, 0, len(products))
	for _, p := range products {
		item := UploadItem{No: p.ProductNo}
		if n := names[p.ProductNo]; n != "" {
			item.Title = n
		} else {
			item.Title = p.Name
		}
		if c := covers[p.ProductNo]; c != "" {
			item.CoverImage = c
		} else {
			item.CoverImage = p.ImageURL
		}
		items = append(items, item)
	}
	return items
}

// PriceFor is a convenience for computing a product's optimized price.
func PriceFor(p Product, feeRatePct, marginRatePct float64) pricing.Result {
	return pricing.Optimize(p.Price, feeRatePct, marginRatePct)
}
