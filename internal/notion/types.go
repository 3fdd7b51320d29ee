package notion

// RichText represents a Notion rich text object. Only the fields this
// client reads and writes are modeled.
type RichText struct {
	Type      string `json:"type,omitempty"`
	PlainText string `json:"plain_text,omitempty"`
	Text      *Text  `json:"text,omitempty"`
}

// Text represents the text content of a rich text object.
type Text struct {
	Content string `json:"content"`
}

// Property is a page property for both create requests and query
// responses. Exactly one of Title and RichTextValues is set, matching
// the Notion "title" / "rich_text" property types.
type Property struct {
	Type           string     `json:"type,omitempty"`
	Title          []RichText `json:"title,omitempty"`
	RichTextValues []RichText `json:"rich_text,omitempty"`
}

// TitleProperty builds a title property with a single text value.
func TitleProperty(content string) Property {
	return Property{Title: []RichText{{Text: &Text{Content: content}}}}
}

// RichTextProperty builds a rich_text property with a single text value.
func RichTextProperty(content string) Property {
	return Property{RichTextValues: []RichText{{Text: &Text{Content: content}}}}
}

// PlainText concatenates the plain text of a rich text array. Values
// written by this client carry Text.Content instead of PlainText, so
// both are considered.
func PlainText(values []RichText) string {
	var s string
	for _, v := range values {
		if v.PlainText != "" {
			s += v.PlainText
			continue
		}
		if v.Text != nil {
			s += v.Text.Content
		}
	}
	return s
}

// Parent identifies the database a page is created under.
type Parent struct {
	DatabaseID string `json:"database_id"`
}

// CreatePageRequest is the body for POST /v1/pages.
type CreatePageRequest struct {
	Parent     Parent              `json:"parent"`
	Properties map[string]Property `json:"properties"`
}

// Page is a Notion page as returned by a database query.
type Page struct {
	Object     string              `json:"object"`
	ID         string              `json:"id"`
	Properties map[string]Property `json:"properties"`
}

// StatusFilter filters a database query on a status property.
type StatusFilter struct {
	Property string       `json:"property"`
	Status   StatusEquals `json:"status"`
}

// StatusEquals matches a status property by exact value.
type StatusEquals struct {
	Equals string `json:"equals"`
}

// QueryDatabaseRequest is the body for POST /v1/databases/{id}/query.
type QueryDatabaseRequest struct {
	PageSize    int           `json:"page_size,omitempty"`
	StartCursor string        `json:"start_cursor,omitempty"`
	Filter      *StatusFilter `json:"filter,omitempty"`
}

// QueryDatabaseResponse is the paged response of a database query.
type QueryDatabaseResponse struct {
	Object     string `json:"object"`
	Results    []Page `json:"results"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// WordEntry is one vocabulary record: the word itself, its meaning in
// the learner's language, and an example sentence.
type WordEntry struct {
	Word    string `json:"word"`
	Meaning string `json:"meaning"`
	Example string `json:"example"`
}

// WordBatch is a batch of vocabulary records saved in one request.
type WordBatch struct {
	Words []WordEntry `json:"words"`
}

// SentenceEntry is one sentence record: the sentence, its translation,
// and the key grammar or idioms it uses.
type SentenceEntry struct {
	Sentence   string `json:"sentence"`
	Meaning    string `json:"meaning"`
	KeyPhrases string `json:"key_phrases"`
}
