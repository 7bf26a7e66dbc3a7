package listing

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

type Kind string

const (
	KindDoctor   Kind = "doctor"
	KindClinic   Kind = "clinic"
	KindHospital Kind = "hospital"
)

// Core field keys shared by every variant.
const (
	KeyName     = "name"
	KeyArea     = "area"
	KeyCategory = "category"
	KeyType     = "type"
)

// Listing is one row of a doctors, clinics or hospitals table.
// Attrs holds both descriptive text fields and image references, keyed by their JSON name.
type Listing struct {
	ID        int64
	Kind      Kind
	Name      string
	Slug      string
	Area      *string
	Category  *string
	Type      *string
	Attrs     map[string]*string
	UserID    *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Get returns the value stored under a core or attribute key.
func (l Listing) Get(key string) *string {
	switch key {
	case KeyName:
		name := l.Name
		return &name
	case KeyArea:
		return l.Area
	case KeyCategory:
		return l.Category
	case KeyType:
		return l.Type
	}
	return l.Attrs[key]
}

func (l *Listing) Set(key string, v *string) {
	switch key {
	case KeyName:
		if v != nil {
			l.Name = *v
		}
	case KeyArea:
		l.Area = v
	case KeyCategory:
		l.Category = v
	case KeyType:
		l.Type = v
	default:
		if l.Attrs == nil {
			l.Attrs = make(map[string]*string)
		}
		l.Attrs[key] = v
	}
}

func (l Listing) OwnedBy(userID int64) bool {
	return l.UserID != nil && *l.UserID == userID
}

func (l Listing) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(l.Attrs)+11)
	for k, v := range l.Attrs {
		out[k] = v
	}
	out["id"] = l.ID
	out["name"] = l.Name
	out["slug"] = l.Slug
	out["area"] = l.Area
	out["category"] = l.Category
	out["type"] = l.Type
	out["userId"] = l.UserID
	out["createdAt"] = l.CreatedAt
	out["updatedAt"] = l.UpdatedAt
	out["listingType"] = l.Kind
	return json.Marshal(out)
}

// Summary is the card projection used by the "latest" endpoints.
type Summary struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Category *string `json:"category"`
	Area     *string `json:"area"`
	Slug     string  `json:"slug"`
	Image    *string `json:"image"`
}

// Created is the projection returned after a successful create.
type Created struct {
	Listing Listing
	Images  []string
}

func (c Created) MarshalJSON() ([]byte, error) {
	l := c.Listing
	out := map[string]any{
		"id":   l.ID,
		"name": l.Name,
		"slug": l.Slug,
		"area": l.Area,
	}
	if l.Kind == KindDoctor {
		out["category"] = l.Category
	} else {
		out["type"] = l.Type
	}
	for _, key := range c.Images {
		out[key] = l.Attrs[key]
	}
	return json.Marshal(out)
}

// Filter holds optional substring predicates; empty fields are ignored.
type Filter struct {
	Name string
	Area string
	// Key matches category for doctors and type for clinics and hospitals.
	Key string
}

type SearchQuery struct {
	Area      string
	Specialty string
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeScope lowercases, trims and hyphenates area/category values for identity lookups.
func NormalizeScope(s string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
}

// FirstImage returns the first comma separated segment of a stored image reference.
func FirstImage(ref *string) *string {
	if ref == nil {
		return nil
	}
	first := strings.TrimSpace(strings.SplitN(*ref, ",", 2)[0])
	if first == "" {
		return nil
	}
	return &first
}
