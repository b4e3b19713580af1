package sourcing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearchRequest_AllFilters(t *testing.T) {
	req, err := BuildSearchRequest("  shoes ", "10", "1000", true, "sales_rank")
	require.NoError(t, err)

	body, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"keyword":"shoes","min_price":10,"max_price":1000,"free_shipping":true,"sort":"sales_rank"}`, string(body))
}

func TestBuildSearchRequest_OmitsEmptyOptionals(t *testing.T) {
	req, err := BuildSearchRequest("shoes", "", "", false, "")
	require.NoError(t, err)

	body, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"keyword":"shoes"}`, string(body))
}

func TestBuildSearchRequest_Validation(t *testing.T) {
	_, err := BuildSearchRequest("   ", "", "", false, "")
	assert.ErrorIs(t, err, ErrKeywordRequired)

	_, err = BuildSearchRequest("shoes", "500", "100", false, "")
	assert.ErrorIs(t, err, ErrMinAboveMax)

	// Bounds below the floor or non-numeric are dropped, not rejected.
	req, err := BuildSearchRequest("shoes", "5", "abc", false, "")
	require.NoError(t, err)
	assert.Nil(t, req.MinPrice)
	assert.Nil(t, req.MaxPrice)

	// Equal bounds are fine.
	req, err = BuildSearchRequest("shoes", "100", "100", false, "")
	require.NoError(t, err)
	require.NotNil(t, req.MinPrice)
	assert.Equal(t, 100.0, *req.MinPrice)
}
