package sourcing

import "leviosa/internal/pricing"

// Session is an in-progress search, review, and optimization workflow.
// Accepted is kept duplicate-free and ReviewIndex stays within [0, len(Products)].
type Session struct {
	Keyword      string    `json:"keyword"`
	MinPrice     string    `json:"minPrice"`
	MaxPrice     string    `json:"maxPrice"`
	FreeShipping bool      `json:"freeShipping"`
	Sort         string    `json:"sort"`
	Products     []Product `json:"products"`
	Accepted     []string  `json:"accepted"`
	ReviewIndex  int       `json:"reviewIndex"`

	OptimizedPrices map[string]pricing.Result `json:"optimizedPrices,omitempty"`
	OptimizedNames  map[string]string         `json:"optimizedNames,omitempty"`
	CoverImages     map[string]string         `json:"coverImages,omitempty"`
}

// NewSession starts a fresh session for a completed search.
func NewSession(keyword, minPrice, maxPrice string, freeShipping bool, sort string, products []Product) *Session {
	if products == nil {
		products = []Product{}
	}
	return &Session{
		Keyword:      keyword,
		MinPrice:     minPrice,
		MaxPrice:     maxPrice,
		FreeShipping: freeShipping,
		Sort:         sort,
		Products:     products,
		Accepted:     []string{},
	}
}

func (s *Session) clampIndex() {
	if s.ReviewIndex < 0 {
		s.ReviewIndex = 0
	}
	if s.ReviewIndex > len(s.Products) {
		s.ReviewIndex = len(s.Products)
	}
}

// dedupeAccepted drops repeated ids, keeping first occurrences in order.
func (s *Session) dedupeAccepted() {
	seen := make(map[string]struct{}, len(s.Accepted))
	out := s.Accepted[:0]
	for _, id := range s.Accepted {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	s.Accepted = out
}

// CurrentProduct returns the product under review.
func (s *Session) CurrentProduct() (Product, bool) {
	if s.ReviewIndex < 0 || s.ReviewIndex >= len(s.Products) {
		return Product{}, false
	}
	return s.Products[s.ReviewIndex], true
}

// ReviewComplete reports whether every product has been reviewed.
func (s *Session) ReviewComplete() bool {
	return len(s.Products) > 0 && s.ReviewIndex >= len(s.Products)
}

// IsAccepted reports whether a product has been accepted.
func (s *Session) IsAccepted(productNo string) bool {
	for _, id := range s.Accepted {
		if id == productNo {
			return true
		}
	}
	return false
}

// Accept accepts the current product and advances. It returns false once review is complete.
func (s *Session) Accept() bool {
	p, ok := s.CurrentProduct()
	if !ok {
		return false
	}
	if !s.IsAccepted(p.ProductNo) {
		s.Accepted = append(s.Accepted, p.ProductNo)
	}
	s.ReviewIndex++
	return true
}

// Skip advances past the current product without accepting it.
func (s *Session) Skip() bool {
	if _, ok := s.CurrentProduct(); !ok {
		return false
	}
	s.ReviewIndex++
	return true
}

// AllAccepted reports whether every product is accepted.
func (s *Session) AllAccepted() bool {
	if len(s.Products) == 0 {
		return false
	}
	for _, p := range s.Products {
		if !s.IsAccepted(p.ProductNo) {
			return false
		}
	}
	return true
}

// AcceptAll accepts every product and marks review complete.
func (s *Session) AcceptAll() {
	s.Accepted = make([]string, 0, len(s.Products))
	for _, p := range s.Products {
		if !s.IsAccepted(p.ProductNo) {
			s.Accepted = append(s.Accepted, p.ProductNo)
		}
	}
	s.ReviewIndex = len(s.Products)
}

// ResetDecisions clears every accept decision and rewinds review.
func (s *Session) ResetDecisions() {
	s.Accepted = []string{}
	s.ReviewIndex = 0
}

// AcceptedProducts returns accepted products in search order.
func (s *Session) AcceptedProducts() []Product {
	out := make([]Product, 0, len(s.Accepted))
	for _, p := range s.Products {
		if s.IsAccepted(p.ProductNo) {
			out = append(out, p)
		}
	}
	return out
}

// BulkTargets returns the products a bulk action applies to. With nothing
// accepted yet, everything is accepted first.
func (s *Session) BulkTargets() []Product {
	if len(s.Accepted) == 0 {
		s.AcceptAll()
	}
	return s.AcceptedProducts()
}

// SetPrice records an optimized price.
func (s *Session) SetPrice(productNo string, r pricing.Result) {
	if s.OptimizedPrices == nil {
		s.OptimizedPrices = make(map[string]pricing.Result)
	}
	s.OptimizedPrices[productNo] = r
}

// SetName records an optimized name.
func (s *Session) SetName(productNo, name string) {
	if s.OptimizedNames == nil {
		s.OptimizedNames = make(map[string]string)
	}
	s.OptimizedNames[productNo] = name
}

// SetCover records a generated cover as a data URL.
func (s *Session) SetCover(productNo, dataURL string) {
	if s.CoverImages == nil {
		s.CoverImages = make(map[string]string)
	}
	s.CoverImages[productNo] = dataURL
}

// OptimizeAllPrices prices every bulk target and returns how many were priced.
func (s *Session) OptimizeAllPrices(feeRatePct, marginRatePct float64) int {
	targets := s.BulkTargets()
	for _, p := range targets {
		s.SetPrice(p.ProductNo, PriceFor(p, feeRatePct, marginRatePct))
	}
	return len(targets)
}

// UploadItems builds upload items for the bulk targets.
func (s *Session) UploadItems() []UploadItem {
	return BuildUploadItems(s.BulkTargets(), s.OptimizedNames, s.CoverImages)
}
