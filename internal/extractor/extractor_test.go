package extractor

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor() *Extractor {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// productPayload builds the doubly-embedded anchor structure the platform
// ships: the product payload is JSON inside the entry's "extra" string,
// which itself sits inside the anchor's "extra" JSON string.
func productPayload(t *testing.T, product map[string]any) string {
	t.Helper()

	inner, err := json.Marshal(product)
	require.NoError(t, err)

	entryList, err := json.Marshal([]map[string]any{{"extra": string(inner)}})
	require.NoError(t, err)

	return string(entryList)
}

func scopeContent(t *testing.T, scope any) string {
	t.Helper()

	data, err := json.Marshal(map[string]any{"__DEFAULT_SCOPE__": scope})
	require.NoError(t, err)

	return fmt.Sprintf(`<html><head><script>window.__DEFAULT_SCOPE__ = %s;</script></head><body></body></html>`, data)
}

func videoDetailScope(anchorExtra string) map[string]any {
	return map[string]any{
		"webapp.video-detail": map[string]any{
			"itemInfo": map[string]any{
				"itemStruct": map[string]any{
					"anchors": []any{map[string]any{"extra": anchorExtra}},
				},
			},
		},
	}
}

func TestExtractReturnsEmptyWithoutPayload(t *testing.T) {
	e := newTestExtractor()

	for _, content := range []string{
		"",
		"<html><body><p>nothing here</p></body></html>",
		`<html><script>var unrelated = {"a": 1};</script></html>`,
	} {
		products := e.Extract(content)
		assert.NotNil(t, products)
		assert.Empty(t, products)
	}
}

func TestExtractReturnsEmptyOnMalformedPayload(t *testing.T) {
	e := newTestExtractor()

	content := `<script>window.__DEFAULT_SCOPE__ = {"webapp.video-detail": };</script>`
	assert.Empty(t, e.Extract(content))
}

func TestExtractSingleProduct(t *testing.T) {
	e := newTestExtractor()

	content := scopeContent(t, videoDetailScope(productPayload(t, map[string]any{
		"product_id":      json.Number("7254123998877665544"),
		"seller_id":       json.Number("7123001122334455667"),
		"title":           "Summer Tee",
		"price":           19.5,
		"currency":        "USD",
		"currency_format": map[string]any{"currency_symbol": "$", "decimal_place": 2},
		"categories":      []string{"apparel", "tops"},
		"img_url":         []string{"https://cdn.example.com/a.jpg"},
		"detail_url":      "https://shop.example.com/item/7254123998877665544",
	})))

	products := e.Extract(content)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, "7254123998877665544", p.ProductID)
	assert.Equal(t, "7123001122334455667", p.SellerID)
	assert.Equal(t, "Summer Tee", p.Title)
	assert.Equal(t, 19.5, p.Price)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, "$19.50", p.FormattedPrice)
	assert.Equal(t, []any{"apparel", "tops"}, p.Categories)
	assert.Equal(t, "TikTok Shop", p.Source, "missing source falls back to default")
	assert.Equal(t, "https://shop.example.com/item/7254123998877665544", p.DetailURL)
}

func TestExtractIsDeterministic(t *testing.T) {
	e := newTestExtractor()

	content := scopeContent(t, videoDetailScope(productPayload(t, map[string]any{
		"product_id": json.Number("7254123998877665544"),
		"title":      "Summer Tee",
		"skus":       "single-sku",
	})))

	first := e.Extract(content)
	second := e.Extract(content)

	assert.Equal(t, first, second)
}

func TestExtractPreservesHugeIDs(t *testing.T) {
	e := newTestExtractor()

	// Both exceed 2^53; a float64 round trip would corrupt the low digits.
	const productID = "72541239988776655443322110099"
	const sellerID = "9223372036854775808123"

	raw := fmt.Sprintf(`[{"extra": "{\"product_id\": %s, \"seller_id\": %s}"}]`, productID, sellerID)
	content := scopeContent(t, videoDetailScope(raw))

	products := e.Extract(content)
	require.Len(t, products, 1)
	assert.Equal(t, productID, products[0].ProductID)
	assert.Equal(t, sellerID, products[0].SellerID)
}

func TestExtractNormalizesScalarListFields(t *testing.T) {
	e := newTestExtractor()

	content := scopeContent(t, videoDetailScope(productPayload(t, map[string]any{
		"product_id": json.Number("100"),
		"categories": "apparel",
		"img_url":    "https://cdn.example.com/only.jpg",
	})))

	products := e.Extract(content)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, []any{"apparel"}, p.Categories, "scalar wraps into a single-element list")
	assert.Equal(t, []any{"https://cdn.example.com/only.jpg"}, p.Images)
	assert.Equal(t, []any{}, p.Skus, "missing field yields an empty list")
}

func TestExtractListWrappedLevelsMatchUnwrapped(t *testing.T) {
	e := newTestExtractor()

	anchorExtra := productPayload(t, map[string]any{
		"product_id": json.Number("7254123998877665544"),
		"title":      "Wrapped",
	})

	unwrapped := scopeContent(t, videoDetailScope(anchorExtra))

	// Same payload with a one-element list at every nesting level.
	wrapped := scopeContent(t, []any{map[string]any{
		"webapp.video-detail": []any{map[string]any{
			"itemInfo": []any{map[string]any{
				"itemStruct": []any{map[string]any{
					"anchors": map[string]any{"extra": anchorExtra},
				}},
			}},
		}},
	}})

	assert.Equal(t, e.Extract(unwrapped), e.Extract(wrapped))
}

func TestExtractDataIslandFallback(t *testing.T) {
	e := newTestExtractor()

	scope, err := json.Marshal(map[string]any{
		"__DEFAULT_SCOPE__": videoDetailScope(productPayload(t, map[string]any{
			"product_id": json.Number("42"),
		})),
	})
	require.NoError(t, err)

	content := fmt.Sprintf(
		`<html><body><script id="__UNIVERSAL_DATA_FOR_REHYDRATION__" type="application/json">%s</script></body></html>`,
		scope)

	products := e.Extract(content)
	require.Len(t, products, 1)
	assert.Equal(t, "42", products[0].ProductID)
}

func TestExtractSkipsMalformedSiblingEntries(t *testing.T) {
	e := newTestExtractor()

	// Second entry's nested extra is broken JSON; the first must survive.
	anchorExtra := `[{"extra": "{\"product_id\": 7001, \"title\": \"Good\"}"}, {"extra": "{not json"}]`
	content := scopeContent(t, videoDetailScope(anchorExtra))

	products := e.Extract(content)
	require.Len(t, products, 1)
	assert.Equal(t, "7001", products[0].ProductID)
	assert.Equal(t, "Good", products[0].Title)
}

func TestExtractTitleEscapeNormalization(t *testing.T) {
	e := newTestExtractor()

	raw := `[{"extra": "{\"product_id\": 1, \"title\": \"Tee \\\\u0026 Shirt \\\\u2122\"}"}]`
	content := scopeContent(t, videoDetailScope(raw))

	products := e.Extract(content)
	require.Len(t, products, 1)
	assert.Equal(t, "Tee & Shirt ™", products[0].Title)
}

func TestFormattedPriceOmittedWithoutCurrencyFormat(t *testing.T) {
	e := newTestExtractor()

	content := scopeContent(t, videoDetailScope(productPayload(t, map[string]any{
		"product_id": json.Number("1"),
		"price":      19.5,
	})))

	products := e.Extract(content)
	require.Len(t, products, 1)
	assert.Empty(t, products[0].FormattedPrice)

	data, err := json.Marshal(products[0])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "formatted_price")
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		format   map[string]any
		expected string
	}{
		{
			name:     "euro with two decimals",
			price:    19.5,
			format:   map[string]any{"currency_symbol": "€", "decimal_place": 2},
			expected: "€19.50",
		},
		{
			name:     "defaults to dollar and two decimals",
			price:    7,
			format:   map[string]any{},
			expected: "$7.00",
		},
		{
			name:     "thousands grouping",
			price:    1234567.891,
			format:   map[string]any{"currency_symbol": "$", "decimal_place": 2},
			expected: "$1,234,567.89",
		},
		{
			name:     "zero decimal places",
			price:    1500,
			format:   map[string]any{"currency_symbol": "¥", "decimal_place": 0},
			expected: "¥1,500",
		},
		{
			name:     "decimal place as JSON number",
			price:    3.141,
			format:   map[string]any{"currency_symbol": "£", "decimal_place": json.Number("3")},
			expected: "£3.141",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatPrice(tt.price, tt.format))
		})
	}
}

func TestFirstElement(t *testing.T) {
	obj := map[string]any{"k": "v"}

	got, ok := firstElement(obj)
	assert.True(t, ok)
	assert.Equal(t, obj, got)

	got, ok = firstElement([]any{obj, map[string]any{"other": 1}})
	assert.True(t, ok)
	assert.Equal(t, obj, got)

	_, ok = firstElement([]any{})
	assert.False(t, ok)

	_, ok = firstElement(nil)
	assert.False(t, ok)

	_, ok = firstElement("scalar")
	assert.False(t, ok)
}

func TestAsList(t *testing.T) {
	assert.Equal(t, []any{}, asList(nil))
	assert.Equal(t, []any{"a"}, asList("a"))
	assert.Equal(t, []any{"a", "b"}, asList([]any{"a", "b"}))
}
