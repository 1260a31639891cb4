package chemrxiv

// ItemsResponse is the body of the public items endpoint.
type ItemsResponse struct {
	TotalCount int       `json:"totalCount"`
	ItemHits   []ItemHit `json:"itemHits"`
}

// ItemHit wraps one item in a search page.
type ItemHit struct {
	Item Item `json:"item"`
}

// Item is a ChemRxiv preprint record.
type Item struct {
	ID            string     `json:"id"`
	DOI           string     `json:"doi"`
	Title         string     `json:"title"`
	Abstract      string     `json:"abstract"`
	Authors       []Author   `json:"authors"`
	Categories    []Category `json:"categories"`
	PublishedDate string     `json:"publishedDate"` // ISO-8601
	Version       string     `json:"version"`
	Asset         *Asset     `json:"asset,omitempty"`
}

// Author is a single author entry.
type Author struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Category is a subject category attached to an item.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Asset holds the downloadable manuscript.
type Asset struct {
	Original *AssetFile `json:"original,omitempty"`
}

// AssetFile is one downloadable file.
type AssetFile struct {
	URL string `json:"url"`
}
