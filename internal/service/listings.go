package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/geocoder89/docdirectory/internal/cache"
	"github.com/geocoder89/docdirectory/internal/domain/listing"
	"github.com/geocoder89/docdirectory/internal/slug"
	"github.com/geocoder89/docdirectory/internal/storage"
)

// LatestLimit is how many cards the latest endpoints return.
const LatestLimit = 8

const latestKey = "latest"

type ListingStore interface {
	Create(ctx context.Context, l listing.Listing) (listing.Listing, error)
	GetByID(ctx context.Context, id int64) (listing.Listing, error)
	GetByIdentity(ctx context.Context, slug string, scope map[string]string) (listing.Listing, error)
	ListByOwner(ctx context.Context, userID int64) ([]listing.Listing, error)
	Filter(ctx context.Context, f listing.Filter) ([]listing.Listing, error)
	Search(ctx context.Context, q listing.SearchQuery) ([]listing.Listing, error)
	Latest(ctx context.Context, limit int) ([]listing.Summary, error)
	Update(ctx context.Context, l listing.Listing) (listing.Listing, error)
	Delete(ctx context.Context, id int64) error
	SlugExists(ctx context.Context, candidate string, scope map[string]string, excludeID int64) (bool, error)
}

type FileStore interface {
	Store(ctx context.Context, up storage.Upload) (string, error)
	Remove(ctx context.Context, name string) error
}

type CacheObserver interface {
	ObserveCache(kind string, hit bool)
}

// Input carries a create or update request. A key absent from Values means
// "not provided"; on update that leaves the stored value unchanged.
type Input struct {
	Values map[string]string
	Files  map[string]storage.Upload
}

type ListingService struct {
	schema   listing.Schema
	store    ListingStore
	files    FileStore
	stamps   *slug.TimestampSuffixer
	resolver slug.Resolver
	latest   *cache.Cache[[]listing.Summary]
	metrics  CacheObserver
	log      *slog.Logger

	// latestGen is bumped on every write so a Latest read that raced a write is not cached.
	latestMu  sync.Mutex
	latestGen uint64
}

type ListingServiceDeps struct {
	Store   ListingStore
	Files   FileStore
	Stamps  *slug.TimestampSuffixer
	Latest  *cache.Cache[[]listing.Summary]
	Metrics CacheObserver
	Log     *slog.Logger
}

func NewListingService(schema listing.Schema, deps ListingServiceDeps) *ListingService {
	if deps.Stamps == nil {
		deps.Stamps = slug.NewTimestampSuffixer(nil)
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &ListingService{
		schema:   schema,
		store:    deps.Store,
		files:    deps.Files,
		stamps:   deps.Stamps,
		resolver: slug.Resolver{Checker: deps.Store},
		latest:   deps.Latest,
		metrics:  deps.Metrics,
		log:      deps.Log.With("listing", string(schema.Kind)),
	}
}

func (s *ListingService) Schema() listing.Schema { return s.schema }

func (s *ListingService) Create(ctx context.Context, ownerID int64, in Input) (listing.Created, error) {
	l := listing.Listing{Kind: s.schema.Kind, Attrs: make(map[string]*string)}

	var missing []string
	for _, key := range s.schema.TextKeys() {
		v := clean(in.Values[key])
		if v == nil && s.schema.IsRequired(key) {
			missing = append(missing, key)
			continue
		}
		l.Set(key, v)
	}
	if len(missing) > 0 {
		return listing.Created{}, &listing.ValidationError{Fields: missing}
	}

	for _, key := range s.schema.ImageKeys() {
		l.Set(key, nil)
	}

	var err error
	l.Slug, err = s.slugFor(ctx, l)
	if err != nil {
		return listing.Created{}, err
	}

	stored, err := s.storeImages(ctx, &l, in.Files)
	if err != nil {
		s.discard(ctx, stored)
		return listing.Created{}, err
	}

	if ownerID > 0 {
		owner := ownerID
		l.UserID = &owner
	}

	created, err := s.store.Create(ctx, l)
	if err != nil {
		s.discard(ctx, stored)
		return listing.Created{}, fmt.Errorf("create %s: %w", s.schema.Kind, err)
	}
	s.invalidate()

	s.log.InfoContext(ctx, "listing created", "id", created.ID, "slug", created.Slug, "user_id", ownerID)

	return listing.Created{Listing: created, Images: s.schema.ImageKeys()}, nil
}

// GetByIdentity resolves a public URL. scope carries area and/or category as they appear in the path.
func (s *ListingService) GetByIdentity(ctx context.Context, slugValue string, scope map[string]string) (listing.Listing, error) {
	return s.store.GetByIdentity(ctx, strings.TrimSpace(slugValue), scope)
}

func (s *ListingService) GetByID(ctx context.Context, id int64) (listing.Listing, error) {
	return s.store.GetByID(ctx, id)
}

func (s *ListingService) ListByOwner(ctx context.Context, ownerID int64) ([]listing.Listing, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

func (s *ListingService) Filter(ctx context.Context, f listing.Filter) ([]listing.Listing, error) {
	return s.store.Filter(ctx, f)
}

func (s *ListingService) Search(ctx context.Context, q listing.SearchQuery) ([]listing.Listing, error) {
	return s.store.Search(ctx, q)
}

func (s *ListingService) Latest(ctx context.Context) ([]listing.Summary, error) {
	if s.latest != nil {
		if v, ok := s.latest.Get(latestKey); ok {
			s.observeCache(true)
			return v, nil
		}
		s.observeCache(false)
	}

	s.latestMu.Lock()
	gen := s.latestGen
	s.latestMu.Unlock()

	items, err := s.store.Latest(ctx, LatestLimit)
	if err != nil {
		return nil, err
	}

	if s.latest != nil {
		s.latestMu.Lock()
		if s.latestGen == gen {
			s.latest.Set(latestKey, items)
		}
		s.latestMu.Unlock()
	}
	return items, nil
}

// Update merges in over the stored row owned by ownerID and returns the resulting slug.
func (s *ListingService) Update(ctx context.Context, ownerID, id int64, in Input) (string, error) {
	existing, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return "", err
	}

	updated := existing
	updated.Attrs = make(map[string]*string, len(existing.Attrs))
	for k, v := range existing.Attrs {
		updated.Attrs[k] = v
	}

	var missing []string
	for _, key := range s.schema.TextKeys() {
		raw, provided := in.Values[key]
		if !provided {
			continue
		}
		v := clean(raw)
		if v == nil && s.schema.IsRequired(key) {
			missing = append(missing, key)
			continue
		}
		updated.Set(key, v)
	}
	if len(missing) > 0 {
		return "", &listing.ValidationError{Fields: missing}
	}

	if s.slugInputsChanged(existing, updated) {
		updated.Slug, err = s.slugFor(ctx, updated)
		if err != nil {
			return "", err
		}
	}

	stored, err := s.storeImages(ctx, &updated, in.Files)
	if err != nil {
		s.discard(ctx, stored)
		return "", err
	}

	if _, err := s.store.Update(ctx, updated); err != nil {
		s.discard(ctx, stored)
		if errors.Is(err, listing.ErrNotFound) {
			return "", listing.ErrForbidden
		}
		return "", fmt.Errorf("update %s %d: %w", s.schema.Kind, id, err)
	}
	s.invalidate()

	s.log.InfoContext(ctx, "listing updated", "id", id, "slug", updated.Slug, "user_id", ownerID)
	return updated.Slug, nil
}

func (s *ListingService) Delete(ctx context.Context, ownerID, id int64) error {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return listing.ErrForbidden
		}
		return fmt.Errorf("delete %s %d: %w", s.schema.Kind, id, err)
	}
	s.invalidate()

	s.log.InfoContext(ctx, "listing deleted", "id", id, "user_id", ownerID)
	return nil
}

// owned re-fetches the row; a missing row and another user's row are indistinguishable.
func (s *ListingService) owned(ctx context.Context, ownerID, id int64) (listing.Listing, error) {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return listing.Listing{}, listing.ErrForbidden
		}
		return listing.Listing{}, err
	}
	if !existing.OwnedBy(ownerID) {
		return listing.Listing{}, listing.ErrForbidden
	}
	return existing, nil
}

func (s *ListingService) slugFor(ctx context.Context, l listing.Listing) (string, error) {
	if s.schema.Slug == listing.SlugIncrementing {
		parts := make([]string, 0, len(s.schema.SlugParts))
		for _, key := range s.schema.SlugParts {
			if v := l.Get(key); v != nil {
				parts = append(parts, *v)
			}
		}
		base, err := slug.Join(parts...)
		if err != nil {
			return "", err
		}
		return s.resolver.Unique(ctx, base, s.scopeOf(l), l.ID)
	}

	return s.stamps.Generate(l.Name)
}

func (s *ListingService) slugInputsChanged(before, after listing.Listing) bool {
	for _, key := range s.schema.SlugParts {
		if deref(before.Get(key)) != deref(after.Get(key)) {
			return true
		}
	}
	return false
}

func (s *ListingService) scopeOf(l listing.Listing) map[string]string {
	scope := make(map[string]string, len(s.schema.Scope))
	for _, key := range s.schema.Scope {
		scope[key] = deref(l.Get(key))
	}
	return scope
}

// storeImages uploads any provided files; images without a new upload keep their stored value.
// It returns the names written so far, also on error.
func (s *ListingService) storeImages(ctx context.Context, l *listing.Listing, files map[string]storage.Upload) ([]string, error) {
	var stored []string
	for _, key := range s.schema.ImageKeys() {
		up, ok := files[key]
		if !ok {
			continue
		}
		if s.files == nil {
			return stored, fmt.Errorf("%w: uploads are not configured", storage.ErrInvalidUpload)
		}
		name, err := s.files.Store(ctx, up)
		if err != nil {
			return stored, fmt.Errorf("store %s: %w", key, err)
		}
		stored = append(stored, name)
		l.Set(key, &name)
	}
	return stored, nil
}

// discard removes files stored for a request whose row was never written.
func (s *ListingService) discard(ctx context.Context, names []string) {
	if len(names) == 0 || s.files == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, name := range names {
		if err := s.files.Remove(ctx, name); err != nil {
			s.log.WarnContext(ctx, "orphaned upload not removed", "file", name, "err", err)
		}
	}
}

func (s *ListingService) invalidate() {
	s.latestMu.Lock()
	defer s.latestMu.Unlock()

	s.latestGen++
	if s.latest != nil {
		s.latest.Delete(latestKey)
	}
}

func (s *ListingService) observeCache(hit bool) {
	if s.metrics != nil {
		s.metrics.ObserveCache(string(s.schema.Kind), hit)
	}
}

func clean(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
