package models

// ProductRecord is a normalized commerce product extracted from a video
// page's rehydration payload. Every field that is absent in the payload is
// carried as an explicit empty/default value so records always serialize
// cleanly; a product is dropped only when its payload is not an object at
// all.
type ProductRecord struct {
	ProductID         string         `json:"product_id"`
	Title             string         `json:"title"`
	ElasticTitle      string         `json:"elastic_title"`
	Price             float64        `json:"price"`
	MarketPrice       float64        `json:"market_price"`
	Currency          string         `json:"currency"`
	CurrencyFormat    map[string]any `json:"currency_format"`
	SellerID          string         `json:"seller_id"`
	Source            string         `json:"source"`
	Categories        []any          `json:"categories"`
	Images            []any          `json:"images"`
	CoverURL          string         `json:"cover_url"`
	DetailURL         string         `json:"detail_url"`
	SeoURL            string         `json:"seo_url"`
	Skus              []any          `json:"skus"`
	ProductStatus     any            `json:"product_status"`
	Platform          any            `json:"platform"`
	IsPlatformProduct bool           `json:"is_platform_product"`
	AdLabel           string         `json:"ad_label"`
	AdPosition        string         `json:"ad_position"`
	FormattedPrice    string         `json:"formatted_price,omitempty"`

	// Detail is populated by the enrichment pass and is the only mutation a
	// record sees after construction.
	Detail *ProductDetail `json:"detail,omitempty"`
}

// VideoReference identifies a candidate video discovered on a profile page.
// Identity is the URL; ViewCount is the displayed text, not a parsed number.
type VideoReference struct {
	URL       string `json:"url"`
	ViewCount string `json:"view_count,omitempty"`
}

// VideoRecord bundles a video's display metadata with the products extracted
// from its page. Counts and duration are kept as the text the page displays
// ("1.2M" style values would be destroyed by integer parsing).
type VideoRecord struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	WebURL       string          `json:"web_url"`
	Duration     string          `json:"duration"`
	LikeCount    string          `json:"like_count"`
	Views        string          `json:"views"`
	CommentCount string          `json:"comment_count"`
	PostedDate   string          `json:"posted_date"`
	Products     []ProductRecord `json:"products"`
}

// ProductDetail holds the fields recovered from a product's dedicated page.
type ProductDetail struct {
	AdditionalImages []string `json:"additional_images"`
	CurrentPrice     string   `json:"current_price"`
	AmountSold       string   `json:"amount_sold"`
	Rating           string   `json:"rating"`
	TotalReviews     string   `json:"total_reviews"`
	Reviews          []Review `json:"reviews"`
}

// Review is a single customer review from a product detail page.
type Review struct {
	Reviewer    string `json:"reviewer"`
	Rating      int    `json:"rating"`
	Text        string `json:"text"`
	ItemDetails string `json:"item_details"`
	Date        string `json:"date"`
}
