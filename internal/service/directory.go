package service

import (
	"context"
	"fmt"

	"github.com/geocoder89/docdirectory/internal/domain/listing"
)

// Directory groups the per-variant listing services for cross-variant reads.
type Directory struct {
	services []*ListingService
}

func NewDirectory(services ...*ListingService) *Directory {
	return &Directory{services: services}
}

func (d *Directory) For(kind string) (*ListingService, bool) {
	schema, ok := listing.SchemaFor(kind)
	if !ok {
		return nil, false
	}
	for _, s := range d.services {
		if s.schema.Kind == schema.Kind {
			return s, true
		}
	}
	return nil, false
}

// OwnerListings concatenates the caller's doctors, clinics and hospitals in that order.
func (d *Directory) OwnerListings(ctx context.Context, ownerID int64) ([]listing.Listing, error) {
	out := make([]listing.Listing, 0)
	for _, s := range d.services {
		items, err := s.ListByOwner(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("list %s for owner: %w", s.schema.Plural, err)
		}
		out = append(out, items...)
	}
	return out, nil
}

// Search dispatches on kind (doctor, clinic or hospital).
func (d *Directory) Search(ctx context.Context, kind string, q listing.SearchQuery) ([]listing.Listing, error) {
	s, ok := d.For(kind)
	if !ok {
		return nil, listing.ErrUnknownKind
	}
	return s.Search(ctx, q)
}
