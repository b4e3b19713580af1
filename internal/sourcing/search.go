package sourcing

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// MinPriceFilter is the smallest price accepted as a search bound.
const MinPriceFilter = 10

var (
	ErrKeywordRequired = errors.New("search keyword is required")
	ErrMinAboveMax     = errors.New("min price must be less than max price")
)

// BuildSearchRequest validates raw form input. Price bounds that are not
// numeric or fall below MinPriceFilter are dropped rather than rejected.
func BuildSearchRequest(keyword, minPrice, maxPrice string, freeShipping bool, sort string) (SearchRequest, error) {
	trimmed := strings.TrimSpace(keyword)
	if trimmed == "" {
		return SearchRequest{}, ErrKeywordRequired
	}

	req := SearchRequest{
		Keyword:      trimmed,
		FreeShipping: freeShipping,
		Sort:         strings.TrimSpace(sort),
	}
	req.MinPrice = priceBound(minPrice)
	req.MaxPrice = priceBound(maxPrice)

	if req.MinPrice != nil && req.MaxPrice != nil && *req.MinPrice > *req.MaxPrice {
		return SearchRequest{}, ErrMinAboveMax
	}
	return req, nil
}

func priceBound(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < MinPriceFilter {
		return nil
	}
	return &v
}
