package types

// SearchRequest is the body accepted by the search endpoint
type SearchRequest struct {
	Query  string    `json:"query"`
	Source JobSource `json:"source"`
}

// SearchResponse lists raw result lines from the source's tool
type SearchResponse struct {
	Success bool     `json:"success"`
	Source  string   `json:"source"`
	Results []string `json:"results"`
}
