package domain

import (
	"fmt"
	"strings"
)

// Metadata field names shared by every index backend.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldType        = "type"
	FieldLink        = "link"
	FieldOwnerID     = "owner_id"
)

// DefaultCollection is the collection every card is stored in.
const DefaultCollection = "content_collection"

// Card is a user-authored record submitted for indexing.
type Card struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Link        string `json:"link,omitempty"`
	OwnerID     string `json:"ownerId,omitempty"`
}

// Validate checks the fields required to build canonical text and an index key.
func (c Card) Validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidCard)
	case strings.TrimSpace(c.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidCard)
	case strings.TrimSpace(c.Type) == "":
		return fmt.Errorf("%w: type is required", ErrInvalidCard)
	}
	return nil
}

// CanonicalText joins title, description, type and link with single spaces and
// trims the ends. Absent optional fields still contribute their separator.
func (c Card) CanonicalText() string {
	return strings.TrimSpace(c.Title + " " + c.Description + " " + c.Type + " " + c.Link)
}

// Metadata returns the payload stored alongside the card vector.
func (c Card) Metadata() Metadata {
	return Metadata{
		Title:       c.Title,
		Description: c.Description,
		Type:        c.Type,
		Link:        c.Link,
		OwnerID:     c.OwnerID,
	}
}

// Metadata is the flat payload attached to an index entry.
type Metadata struct {
	Title       string
	Description string
	Type        string
	Link        string
	OwnerID     string
}

// Fields renders metadata as a string map. Every key is always present so an
// upsert overwrites stale values.
func (m Metadata) Fields() map[string]string {
	return map[string]string{
		FieldTitle:       m.Title,
		FieldDescription: m.Description,
		FieldType:        m.Type,
		FieldLink:        m.Link,
		FieldOwnerID:     m.OwnerID,
	}
}

// MetadataFromFields is the inverse of Fields. It reports false when none of
// the metadata keys is present.
func MetadataFromFields(fields map[string]string) (Metadata, bool) {
	found := false
	get := func(key string) string {
		v, ok := fields[key]
		if ok {
			found = true
		}
		return v
	}
	m := Metadata{
		Title:       get(FieldTitle),
		Description: get(FieldDescription),
		Type:        get(FieldType),
		Link:        get(FieldLink),
		OwnerID:     get(FieldOwnerID),
	}
	return m, found
}

// IndexEntry is what gets persisted for one card.
type IndexEntry struct {
	ID       string
	Vector   []float32
	Document string
	Metadata Metadata
}

// NewIndexEntry builds the entry for a card and its embedding.
func NewIndexEntry(c Card, text string, vector []float32) IndexEntry {
	return IndexEntry{
		ID:       c.ID,
		Vector:   vector,
		Document: text,
		Metadata: c.Metadata(),
	}
}

// Neighbor is a single nearest-neighbour hit. Metadata is nil when the
// backend returned an entry without payload.
type Neighbor struct {
	ID       string
	Distance float64
	Metadata *Metadata
}

// MatchResult is the projection of the closest card returned to callers.
type MatchResult struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Link        string `json:"link"`
}

// MatchFromNeighbor projects a hit into a result. Returns nil without metadata.
func MatchFromNeighbor(n Neighbor) *MatchResult {
	if n.Metadata == nil {
		return nil
	}
	return &MatchResult{
		ID:          n.ID,
		Title:       n.Metadata.Title,
		Description: n.Metadata.Description,
		Type:        n.Metadata.Type,
		Link:        n.Metadata.Link,
	}
}
