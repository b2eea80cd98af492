package crawler

// PageMap is the analyzed structure of a page, handed to the drafting model.
type PageMap struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Elements   []Element `json:"elements"`
	Navigation []NavItem `json:"navigation"`
	IsSPA      bool      `json:"isSPA"`
}

// Element is an interactive control on the page.
type Element struct {
	// Selector is a suggested scenario selector in YAML flow form,
	// e.g. {label: Salvar, tag: button}.
	Selector    string `json:"selector"`
	Type        string `json:"type"` // button, link, select, checkbox, radio or an input type
	Text        string `json:"text,omitempty"`
	Label       string `json:"label,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	// Count is set when Selector stands for a family of similar controls.
	Count int `json:"count,omitempty"`

	tag string
}

// NavItem is a navigation link or tab button.
type NavItem struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Href     string `json:"href,omitempty"`
}
