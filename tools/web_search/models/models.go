package models

// Result is one web search hit, normalized across providers.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Content string  `json:"content,omitempty"` // raw page content when the provider returns it
	Score   float64 `json:"score,omitempty"`
}
