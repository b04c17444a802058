package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lmercier/libris/internal/liberr"
)

// Document kinds. A document's kind is fixed at creation; re-typing a
// document means replacing it.
const (
	KindBook      = "book"
	KindMagazine  = "magazine"
	KindNewspaper = "newspaper"
	KindMedia     = "media"
)

// Media types for KindMedia documents.
const (
	MediaCD  = "CD"
	MediaDVD = "DVD"
)

// ValidKind reports whether kind names a known document kind.
func ValidKind(kind string) bool {
	switch kind {
	case KindBook, KindMagazine, KindNewspaper, KindMedia:
		return true
	}
	return false
}

// Attributes holds the kind-specific fields of a document. It is persisted
// as a JSON blob and must round-trip without loss; only the fields relevant
// to the document's kind are populated.
type Attributes struct {
	PublishedAt string `json:"published_at,omitempty"` // YYYY-MM-DD

	// Book.
	Author string `json:"author,omitempty"`
	Pages  int    `json:"pages,omitempty"`
	Genre  string `json:"genre,omitempty"`

	// Magazine and newspaper.
	Publisher string `json:"publisher,omitempty"`

	// Magazine.
	Frequency string `json:"frequency,omitempty"`
	Issue     string `json:"issue,omitempty"`

	// Media.
	MediaType       string `json:"media_type,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// Document is a catalog entry: one document plus its inventory counters.
// Availability is authoritative in the store; the Available/Total pair
// always satisfies 0 <= Available <= Total.
type Document struct {
	ID         int64      `json:"id"`
	Kind       string     `json:"kind"`
	Title      string     `json:"title"`
	Attributes Attributes `json:"attributes"`
	Total      int        `json:"total_quantity"`
	Available  int        `json:"available_quantity"`
	CoverMime  string     `json:"cover_mime,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate checks kind-specific constraints before persisting.
func (d *Document) Validate() error {
	if d.Title == "" {
		return liberr.Validation("title is required")
	}
	if !ValidKind(d.Kind) {
		return liberr.Validation("unknown document kind %q", d.Kind)
	}
	if d.Attributes.PublishedAt != "" {
		if _, err := time.Parse("2006-01-02", d.Attributes.PublishedAt); err != nil {
			return liberr.Validation("published_at must be YYYY-MM-DD")
		}
	}
	switch d.Kind {
	case KindBook:
		if d.Attributes.Pages < 0 {
			return liberr.Validation("page count must be non-negative")
		}
	case KindMedia:
		if d.Attributes.MediaType != MediaCD && d.Attributes.MediaType != MediaDVD {
			return liberr.Validation("media_type must be CD or DVD")
		}
		if d.Attributes.DurationMinutes < 0 {
			return liberr.Validation("duration must be non-negative")
		}
	}
	return nil
}

// EncodeAttributes serializes the attributes blob for storage.
func (d *Document) EncodeAttributes() (string, error) {
	data, err := json.Marshal(d.Attributes)
	if err != nil {
		return "", fmt.Errorf("encoding attributes: %w", err)
	}
	return string(data), nil
}

// DecodeAttributes restores the attributes blob from storage.
func (d *Document) DecodeAttributes(blob string) error {
	if blob == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(blob), &d.Attributes); err != nil {
		return fmt.Errorf("decoding attributes: %w", err)
	}
	return nil
}
