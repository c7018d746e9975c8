package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Category is one of the three fixed classification targets
type Category string

const (
	CategoryNone           Category = ""
	CategoryHuman          Category = "H"
	CategoryOrganizational Category = "O"
	CategoryTechnical      Category = "T"
)

// Categories lists the valid categories in display order
var Categories = []Category{CategoryHuman, CategoryOrganizational, CategoryTechnical}

// ParseCategory accepts H/O/T or the long names, case-insensitive
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "h", "human", "humano":
		return CategoryHuman, nil
	case "o", "organizational", "organizacional":
		return CategoryOrganizational, nil
	case "t", "technical", "tecnico", "técnico":
		return CategoryTechnical, nil
	}
	return CategoryNone, fmt.Errorf("invalid category %q (want H, O or T)", s)
}

// Valid reports whether c is one of H, O, T
func (c Category) Valid() bool {
	return c == CategoryHuman || c == CategoryOrganizational || c == CategoryTechnical
}

// Label returns the long display name
func (c Category) Label() string {
	switch c {
	case CategoryHuman:
		return "Human"
	case CategoryOrganizational:
		return "Organizational"
	case CategoryTechnical:
		return "Technical"
	}
	return "Unclassified"
}

// MarshalJSON encodes CategoryNone as null
func (c Category) MarshalJSON() ([]byte, error) {
	if c == CategoryNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(c))
}

// UnmarshalJSON accepts null or a category string
func (c *Category) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = CategoryNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*c = CategoryNone
		return nil
	}
	parsed, err := ParseCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ItemStatus tracks where an item is in the review flow
type ItemStatus string

const (
	StatusPending       ItemStatus = "pending"
	StatusPendingReview ItemStatus = "pending_review"
	StatusConfirmed     ItemStatus = "confirmed"
	StatusUnclassified  ItemStatus = "unclassified"
)

// Valid reports whether s is a known status
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPendingReview, StatusConfirmed, StatusUnclassified:
		return true
	}
	return false
}

// Item is a single submitted measure
type Item struct {
	ID                string     `json:"id"`
	BatchID           string     `json:"batch_id"`
	Text              string     `json:"text"`
	Status            ItemStatus `json:"status"`
	ConfirmedCategory Category   `json:"confirmed_category"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Batch groups the items created by one ingestion
type Batch struct {
	ID        string    `json:"id"`
	CreatedBy string    `json:"created_by,omitempty"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

// LibraryEntry is a confirmed classification in the knowledge base.
// Key is the normalized text and is unique across the library.
type LibraryEntry struct {
	ID         string    `json:"id"`
	Key        string    `json:"-"`
	Text       string    `json:"text"`
	Category   Category  `json:"category"`
	ReuseCount int       `json:"reuse_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SuggestionSource names the decision step that produced a suggestion
type SuggestionSource string

const (
	SourceExact   SuggestionSource = "exact"
	SourcePartial SuggestionSource = "partial"
	SourceKeyword SuggestionSource = "keyword"
	SourceNone    SuggestionSource = "none"
)

// Suggestion is the engine's answer for one text. Never persisted.
type Suggestion struct {
	Category         Category         `json:"category"`
	Reason           string           `json:"reason"`
	Score            float64          `json:"score"`
	AutoClassifiable bool             `json:"auto_classifiable"`
	Source           SuggestionSource `json:"source"`
}

// ItemWithSuggestion pairs a queued item with its current suggestion
type ItemWithSuggestion struct {
	Item
	Suggestion Suggestion `json:"suggestion"`
}

// Activity is an entry in the activity log
type Activity struct {
	ID        string            `json:"id"`
	Action    string            `json:"action"`
	Details   map[string]string `json:"details,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
