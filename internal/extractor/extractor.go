package extractor

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/tokscrape/tiktok-shop-scraper/internal/models"
)

// Two known script embeddings of the rehydration payload. The assignment
// form is tried first; the data-island form is the fallback. Absence of both
// is a normal outcome for videos without shop anchors.
var (
	defaultScopeRe = regexp.MustCompile(`(?s)<script[^>]*>.*?__DEFAULT_SCOPE__\s*=\s*(\{.*?\});.*?</script>`)
	rehydrationRe  = regexp.MustCompile(`(?s)<script[^>]*id="__UNIVERSAL_DATA_FOR_REHYDRATION__"[^>]*>(\{.*?\})</script>`)
	unicodeEscRe   = regexp.MustCompile(`\\u[0-9a-fA-F]{4}`)
)

// Extractor parses rendered page content into normalized product records.
// Extract never fails: unparsable input yields an empty list, and a broken
// anchor or product entry never takes its siblings down with it.
type Extractor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger.With("component", "product_extractor")}
}

// Extract returns every product record embedded in content.
func (e *Extractor) Extract(content string) []models.ProductRecord {
	products := []models.ProductRecord{}

	raw, ok := locatePayload(content)
	if !ok {
		e.logger.Info("no rehydration payload found in page")
		return products
	}

	root, err := decodeJSON(raw)
	if err != nil {
		e.logger.Warn("rehydration payload is not valid JSON", "error", err)
		return products
	}

	// The payload self-reports its wrapping inconsistently: at every level
	// the value may be an object or a one-element list holding it.
	node, ok := root.(map[string]any)
	if !ok {
		return products
	}
	for _, key := range []string{"__DEFAULT_SCOPE__", "webapp.video-detail", "itemInfo", "itemStruct"} {
		node, ok = firstElement(node[key])
		if !ok {
			e.logger.Info("payload is missing expected key", "key", key)
			return products
		}
	}

	anchors := asList(node["anchors"])
	e.logger.Info("anchors found", "count", len(anchors))

	for i, anchor := range anchors {
		am, ok := anchor.(map[string]any)
		if !ok {
			continue
		}
		extraStr, ok := am["extra"].(string)
		if !ok {
			continue
		}

		extra, err := decodeJSON(extraStr)
		if err != nil {
			e.logger.Warn("failed to parse anchor extra data", "anchor", i, "error", err)
			continue
		}

		for _, entry := range asList(extra) {
			em, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			inner, ok := em["extra"].(string)
			if !ok {
				continue
			}

			payload, err := decodeJSON(inner)
			if err != nil {
				e.logger.Warn("failed to parse product extra data", "anchor", i, "error", err)
				continue
			}
			pm, ok := payload.(map[string]any)
			if !ok {
				e.logger.Warn("product payload is not an object", "anchor", i)
				continue
			}

			product := buildProduct(pm)
			e.logger.Info("found product", "product_id", product.ProductID)
			products = append(products, product)
		}
	}

	return products
}

// locatePayload scans content for either known script embedding; first
// match wins.
func locatePayload(content string) (string, bool) {
	if m := defaultScopeRe.FindStringSubmatch(content); m != nil {
		return m[1], true
	}
	if m := rehydrationRe.FindStringSubmatch(content); m != nil {
		return m[1], true
	}
	return "", false
}

// decodeJSON parses with UseNumber so large platform identifiers keep their
// exact digit sequences instead of round-tripping through float64.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// firstElement normalizes the payload's object-or-one-element-list ambiguity:
// a map passes through, a non-empty list yields its first element, anything
// else reports absence.
func firstElement(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		if len(t) == 0 {
			return nil, false
		}
		if m, ok := t[0].(map[string]any); ok {
			return m, true
		}
	}
	return nil, false
}

// asList wraps a scalar into a single-element list; absence yields an empty
// list and a list passes through unchanged.
func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return []any{}
	case []any:
		return t
	default:
		return []any{v}
	}
}

func buildProduct(payload map[string]any) models.ProductRecord {
	rec := models.ProductRecord{
		ProductID:         decimalString(payload["product_id"]),
		Title:             cleanTitle(stringValue(payload["title"])),
		ElasticTitle:      cleanTitle(stringValue(payload["elastic_title"])),
		Price:             floatValue(payload["price"]),
		MarketPrice:       floatValue(payload["market_price"]),
		Currency:          stringOr(payload["currency"], "USD"),
		CurrencyFormat:    mapValue(payload["currency_format"]),
		SellerID:          decimalString(payload["seller_id"]),
		Source:            stringOr(payload["source"], "TikTok Shop"),
		Categories:        asList(payload["categories"]),
		Images:            asList(payload["img_url"]),
		CoverURL:          stringValue(payload["cover_url"]),
		DetailURL:         stringValue(payload["detail_url"]),
		SeoURL:            stringValue(payload["seo_url"]),
		Skus:              asList(payload["skus"]),
		ProductStatus:     payload["product_status"],
		Platform:          payload["platform"],
		IsPlatformProduct: boolValue(payload["is_platform_product"]),
	}

	if inner, ok := payload["extra"].(map[string]any); ok {
		rec.AdLabel = stringValue(inner["ad_label_name"])
		rec.AdPosition = stringValue(inner["ad_label_position"])
	}

	if len(rec.CurrencyFormat) > 0 {
		rec.FormattedPrice = formatPrice(rec.Price, rec.CurrencyFormat)
	}

	return rec
}

// decimalString coerces a platform identifier to its exact decimal-string
// form. IDs routinely exceed 2^53, so the json.Number token is taken verbatim.
func decimalString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func floatValue(v any) float64 {
	switch t := v.(type) {
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func intOr(v any, fallback int) int {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return fallback
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func mapValue(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// cleanTitle undoes the escape artifacts the payload carries: the literal
// ampersand escape, \uXXXX sequences, and stray backslash-quotes.
func cleanTitle(s string) string {
	if s == "" {
		return s
	}

	s = strings.ReplaceAll(s, `\u0026`, "&")
	s = unicodeEscRe.ReplaceAllStringFunc(s, func(esc string) string {
		code, err := strconv.ParseUint(esc[2:], 16, 32)
		if err != nil {
			return esc
		}
		return string(rune(code))
	})
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)

	return s
}

// formatPrice renders price as {symbol}{grouped value} using the payload's
// currency_format, defaulting to "$" and two decimal places.
func formatPrice(price float64, format map[string]any) string {
	symbol := stringOr(format["currency_symbol"], "$")
	decimals := intOr(format["decimal_place"], 2)
	if decimals < 0 {
		decimals = 2
	}
	return symbol + groupThousands(strconv.FormatFloat(price, 'f', decimals, 64))
}

// groupThousands inserts comma separators into the integer part of a
// formatted decimal number.
func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := b.String() + fracPart
	if neg {
		out = "-" + out
	}
	return out
}
