package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/docdirectory/internal/cache"
	"github.com/geocoder89/docdirectory/internal/domain/listing"
	"github.com/geocoder89/docdirectory/internal/slug"
	"github.com/geocoder89/docdirectory/internal/storage"
)

// memListings is an in-memory ListingStore with the same matching rules as the SQL repository.
type memListings struct {
	mu          sync.Mutex
	schema      listing.Schema
	rows        []listing.Listing
	nextID      int64
	clock       time.Time
	latestCalls int

	createErr error
	updateErr error
	// afterLatest runs once, after a Latest read and before it returns.
	afterLatest func()
}

func newMemListings(schema listing.Schema) *memListings {
	return &memListings{schema: schema, clock: time.Unix(1700000000, 0)}
}

func copyListing(l listing.Listing) listing.Listing {
	attrs := make(map[string]*string, len(l.Attrs))
	for k, v := range l.Attrs {
		attrs[k] = v
	}
	l.Attrs = attrs
	return l
}

func (m *memListings) Create(_ context.Context, l listing.Listing) (listing.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return listing.Listing{}, m.createErr
	}
	m.nextID++
	m.clock = m.clock.Add(time.Second)
	l.ID = m.nextID
	l.CreatedAt = m.clock
	l.UpdatedAt = m.clock
	m.rows = append(m.rows, copyListing(l))
	return l, nil
}

func (m *memListings) GetByID(_ context.Context, id int64) (listing.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.ID == id {
			return copyListing(r), nil
		}
	}
	return listing.Listing{}, listing.ErrNotFound
}

func (m *memListings) matchesScope(r listing.Listing, scope map[string]string) bool {
	for _, key := range m.schema.Scope {
		if listing.NormalizeScope(deref(r.Get(key))) != listing.NormalizeScope(scope[key]) {
			return false
		}
	}
	return true
}

func (m *memListings) GetByIdentity(_ context.Context, s string, scope map[string]string) (listing.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.Slug == s && m.matchesScope(r, scope) {
			return copyListing(r), nil
		}
	}
	return listing.Listing{}, listing.ErrNotFound
}

func (m *memListings) newestFirst(keep func(listing.Listing) bool) []listing.Listing {
	out := make([]listing.Listing, 0)
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, copyListing(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memListings) ListByOwner(_ context.Context, userID int64) ([]listing.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newestFirst(func(r listing.Listing) bool { return r.OwnedBy(userID) }), nil
}

func (m *memListings) Filter(_ context.Context, f listing.Filter) ([]listing.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	contains := func(v *string, q string) bool {
		return q == "" || strings.Contains(strings.ToLower(deref(v)), strings.ToLower(q))
	}
	return m.newestFirst(func(r listing.Listing) bool {
		name := r.Name
		return contains(&name, f.Name) && contains(r.Area, f.Area) && contains(r.Get(m.schema.FilterKey), f.Key)
	}), nil
}

func (m *memListings) Search(_ context.Context, q listing.SearchQuery) ([]listing.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newestFirst(func(r listing.Listing) bool {
		return q.Area == "" || strings.EqualFold(deref(r.Area), q.Area)
	}), nil
}

func (m *memListings) Latest(_ context.Context, limit int) ([]listing.Summary, error) {
	out := m.latest(limit)
	if hook := m.afterLatest; hook != nil {
		m.afterLatest = nil
		hook()
	}
	return out, nil
}

func (m *memListings) latest(limit int) []listing.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latestCalls++

	out := make([]listing.Summary, 0, limit)
	for _, r := range m.newestFirst(func(listing.Listing) bool { return true }) {
		if len(out) == limit {
			break
		}
		out = append(out, listing.Summary{
			ID: r.ID, Name: r.Name, Category: r.Category, Area: r.Area, Slug: r.Slug,
			Image: listing.FirstImage(r.Attrs[m.schema.PrimaryImage().Key]),
		})
	}
	return out
}

func (m *memListings) Update(_ context.Context, l listing.Listing) (listing.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return listing.Listing{}, m.updateErr
	}

	for i, r := range m.rows {
		if r.ID == l.ID {
			m.rows[i] = copyListing(l)
			return l, nil
		}
	}
	return listing.Listing{}, listing.ErrNotFound
}

func (m *memListings) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.rows {
		if r.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return listing.ErrNotFound
}

func (m *memListings) SlugExists(_ context.Context, candidate string, scope map[string]string, excludeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.Slug == candidate && r.ID != excludeID && m.matchesScope(r, scope) {
			return true, nil
		}
	}
	return false, nil
}

type fakeFiles struct {
	stored  []string
	removed []string
	err     error
	// failOn makes Store fail for this filename only.
	failOn string
}

func (f *fakeFiles) Store(_ context.Context, up storage.Upload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.failOn != "" && up.Filename == f.failOn {
		return "", storage.ErrInvalidUpload
	}
	name := "stored-" + up.Filename
	f.stored = append(f.stored, name)
	return name, nil
}

func (f *fakeFiles) Remove(_ context.Context, name string) error {
	f.removed = append(f.removed, name)
	return nil
}

func upload(name string) storage.Upload {
	return storage.Upload{
		Filename: name,
		Size:     3,
		Open:     func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader([]byte("abc"))), nil },
	}
}

func newTestService(schema listing.Schema) (*ListingService, *memListings, *fakeFiles) {
	store := newMemListings(schema)
	files := &fakeFiles{}
	fixed := time.UnixMilli(1700000000000)
	svc := NewListingService(schema, ListingServiceDeps{
		Store:  store,
		Files:  files,
		Stamps: slug.NewTimestampSuffixer(func() time.Time { return fixed }),
		Latest: cache.New[[]listing.Summary](30 * time.Second),
	})
	return svc, store, files
}

func doctorInput() Input {
	return Input{Values: map[string]string{
		"name":           "Jane Doe",
		"category":       "Cardiology",
		"area":           "Down Town",
		"specialization": "Heart",
	}}
}

func TestCreate_MissingRequiredFields(t *testing.T) {
	svc, store, _ := newTestService(listing.Doctor)

	_, err := svc.Create(context.Background(), 1, Input{Values: map[string]string{"name": "Jane", "area": "  "}})

	var ve *listing.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if strings.Join(ve.Fields, ",") != "area,category,specialization" {
		t.Fatalf("unexpected missing fields %v", ve.Fields)
	}
	if len(store.rows) != 0 {
		t.Fatalf("nothing should be persisted")
	}
}

func TestCreate_InvalidNameForSlug(t *testing.T) {
	svc, _, _ := newTestService(listing.Clinic)

	_, err := svc.Create(context.Background(), 1, Input{Values: map[string]string{"name": "!!!", "type": "General", "area": "X"}})
	if !errors.Is(err, slug.ErrInvalidName) {
		t.Fatalf("got %v, want ErrInvalidName", err)
	}
}

func TestDoctor_RoundTripAndIncrementingSlug(t *testing.T) {
	svc, _, _ := newTestService(listing.Doctor)
	ctx := context.Background()

	first, err := svc.Create(ctx, 7, doctorInput())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if first.Listing.Slug != "jane-doe-cardiology" {
		t.Fatalf("got slug %q", first.Listing.Slug)
	}

	second, err := svc.Create(ctx, 7, doctorInput())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if second.Listing.Slug != "jane-doe-cardiology-1" {
		t.Fatalf("second slug = %q, want jane-doe-cardiology-1", second.Listing.Slug)
	}

	got, err := svc.GetByIdentity(ctx, "jane-doe-cardiology", map[string]string{"category": " cardiology "})
	if err != nil {
		t.Fatalf("GetByIdentity error: %v", err)
	}
	if got.ID != first.Listing.ID || got.Name != "Jane Doe" || deref(got.Attrs["specialization"]) != "Heart" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Attrs["doctorImage"] != nil {
		t.Fatalf("absent image should be null")
	}

	if _, err := svc.GetByIdentity(ctx, "jane-doe-cardiology", map[string]string{"category": "neurology"}); !errors.Is(err, listing.ErrNotFound) {
		t.Fatalf("wrong category should be not found, got %v", err)
	}
}

func TestClinic_TimestampSlugsDistinct(t *testing.T) {
	svc, _, _ := newTestService(listing.Clinic)
	in := Input{Values: map[string]string{"name": "City Care", "type": "General", "area": "North"}}

	a, err := svc.Create(context.Background(), 1, in)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	b, err := svc.Create(context.Background(), 1, in)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if a.Listing.Slug == b.Listing.Slug {
		t.Fatalf("expected distinct slugs, both %q", a.Listing.Slug)
	}
	if !strings.HasPrefix(a.Listing.Slug, "city-care-") {
		t.Fatalf("unexpected slug %q", a.Listing.Slug)
	}
}

func TestCreate_StoresImages(t *testing.T) {
	svc, _, files := newTestService(listing.Hospital)

	in := Input{
		Values: map[string]string{"name": "General Hospital", "type": "Public", "area": "Centre"},
		Files:  map[string]storage.Upload{"hospitalImage": upload("front.png")},
	}

	created, err := svc.Create(context.Background(), 3, in)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if deref(created.Listing.Attrs["hospitalImage"]) != "stored-front.png" {
		t.Fatalf("image ref not stored: %v", created.Listing.Attrs)
	}
	if created.Listing.Attrs["otherImage"] != nil {
		t.Fatalf("otherImage should be null")
	}
	if len(files.stored) != 1 {
		t.Fatalf("expected one stored file, got %d", len(files.stored))
	}
}

func TestCreate_UploadRejected(t *testing.T) {
	svc, store, files := newTestService(listing.Hospital)
	files.err = storage.ErrInvalidUpload

	in := Input{
		Values: map[string]string{"name": "General Hospital", "type": "Public", "area": "Centre"},
		Files:  map[string]storage.Upload{"hospitalImage": upload("x.exe")},
	}
	if _, err := svc.Create(context.Background(), 3, in); !errors.Is(err, storage.ErrInvalidUpload) {
		t.Fatalf("got %v, want ErrInvalidUpload", err)
	}
	if len(store.rows) != 0 {
		t.Fatalf("row persisted despite rejected upload")
	}
}

func TestCreate_FailedWriteRemovesUploads(t *testing.T) {
	tests := []struct {
		name        string
		createErr   error
		failOn      string
		wantRemoved []string
	}{
		{"store error", errors.New("db down"), "", []string{"stored-a.png", "stored-b.png"}},
		{"second upload rejected", nil, "b.png", []string{"stored-a.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, files := newTestService(listing.Hospital)
			store.createErr = tt.createErr
			files.failOn = tt.failOn

			in := Input{
				Values: map[string]string{"name": "General Hospital", "type": "Public", "area": "Centre"},
				Files: map[string]storage.Upload{
					"hospitalImage": upload("a.png"),
					"otherImage":    upload("b.png"),
				},
			}
			if _, err := svc.Create(context.Background(), 3, in); err == nil {
				t.Fatalf("expected error")
			}
			if !slices.Equal(files.removed, tt.wantRemoved) {
				t.Fatalf("removed = %v, want %v", files.removed, tt.wantRemoved)
			}
		})
	}
}

func TestUpdate_FailedWriteRemovesUploads(t *testing.T) {
	svc, store, files := newTestService(listing.Doctor)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, doctorInput())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	store.updateErr = errors.New("db down")
	in := Input{Files: map[string]storage.Upload{"doctorImage": upload("new.png")}}
	if _, err := svc.Update(ctx, 1, created.Listing.ID, in); err == nil {
		t.Fatalf("expected error")
	}
	if !slices.Equal(files.removed, []string{"stored-new.png"}) {
		t.Fatalf("removed = %v", files.removed)
	}
}

func TestUpdate_NonOwnerSameAsMissing(t *testing.T) {
	svc, _, _ := newTestService(listing.Doctor)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, doctorInput())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	upd := Input{Values: map[string]string{"area": "Uptown"}}

	_, errOther := svc.Update(ctx, 2, created.Listing.ID, upd)
	_, errMissing := svc.Update(ctx, 2, 9999, upd)

	if !errors.Is(errOther, listing.ErrForbidden) || !errors.Is(errMissing, listing.ErrForbidden) {
		t.Fatalf("non-owner %v and missing %v must both be ErrForbidden", errOther, errMissing)
	}
	if errOther.Error() != errMissing.Error() {
		t.Fatalf("errors differ: %q vs %q", errOther, errMissing)
	}

	if err := svc.Delete(ctx, 2, created.Listing.ID); !errors.Is(err, listing.ErrForbidden) {
		t.Fatalf("delete by non-owner: got %v", err)
	}
}

func TestUpdate_PreservesImagesAndOmittedFields(t *testing.T) {
	svc, store, _ := newTestService(listing.Clinic)
	ctx := context.Background()

	created, err := svc.Create(ctx, 5, Input{
		Values: map[string]string{"name": "City Care", "type": "General", "area": "North", "website": "https://a.example"},
		Files:  map[string]storage.Upload{"clinicImage": upload("a.png"), "otherImage": upload("b.png")},
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	id := created.Listing.ID

	newSlug, err := svc.Update(ctx, 5, id, Input{
		Values: map[string]string{"area": "South"},
		Files:  map[string]storage.Upload{"otherImage": upload("c.png")},
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if newSlug != created.Listing.Slug {
		t.Fatalf("slug changed without a name change: %q -> %q", created.Listing.Slug, newSlug)
	}

	got, _ := store.GetByID(ctx, id)
	if deref(got.Attrs["clinicImage"]) != "stored-a.png" {
		t.Fatalf("clinicImage not preserved: %v", deref(got.Attrs["clinicImage"]))
	}
	if deref(got.Attrs["otherImage"]) != "stored-c.png" {
		t.Fatalf("otherImage not replaced: %v", deref(got.Attrs["otherImage"]))
	}
	if deref(got.Attrs["website"]) != "https://a.example" || deref(got.Type) != "General" {
		t.Fatalf("omitted fields changed: %+v", got)
	}
	if deref(got.Area) != "South" {
		t.Fatalf("area not updated")
	}
}

func TestUpdate_NameChangeRegeneratesSlug(t *testing.T) {
	svc, _, _ := newTestService(listing.Clinic)
	ctx := context.Background()

	created, _ := svc.Create(ctx, 5, Input{Values: map[string]string{"name": "City Care", "type": "General", "area": "North"}})

	newSlug, err := svc.Update(ctx, 5, created.Listing.ID, Input{Values: map[string]string{"name": "Town Care"}})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if !strings.HasPrefix(newSlug, "town-care-") {
		t.Fatalf("slug not regenerated: %q", newSlug)
	}
}

func TestUpdate_DoctorKeepsOwnSlug(t *testing.T) {
	svc, _, _ := newTestService(listing.Doctor)
	ctx := context.Background()

	created, _ := svc.Create(ctx, 1, doctorInput())

	// same name and category: the row's own slug must not count as a conflict
	got, err := svc.Update(ctx, 1, created.Listing.ID, Input{Values: map[string]string{"name": "Jane Doe", "category": "Cardiology"}})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got != "jane-doe-cardiology" {
		t.Fatalf("got slug %q", got)
	}

	got, err = svc.Update(ctx, 1, created.Listing.ID, Input{Values: map[string]string{"category": "Neurology"}})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got != "jane-doe-neurology" {
		t.Fatalf("category change should re-derive slug, got %q", got)
	}
}

func TestUpdate_ProvidedRequiredFieldEmpty(t *testing.T) {
	svc, _, _ := newTestService(listing.Doctor)
	created, _ := svc.Create(context.Background(), 1, doctorInput())

	_, err := svc.Update(context.Background(), 1, created.Listing.ID, Input{Values: map[string]string{"name": " "}})
	if !listing.IsValidation(err) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestDelete_Owner(t *testing.T) {
	svc, _, _ := newTestService(listing.Doctor)
	ctx := context.Background()
	created, _ := svc.Create(ctx, 1, doctorInput())

	if err := svc.Delete(ctx, 1, created.Listing.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := svc.GetByID(ctx, created.Listing.ID); !errors.Is(err, listing.ErrNotFound) {
		t.Fatalf("row should be gone, got %v", err)
	}
	if err := svc.Delete(ctx, 1, created.Listing.ID); !errors.Is(err, listing.ErrForbidden) {
		t.Fatalf("second delete: got %v", err)
	}
}

func TestLatest_CachedAndInvalidated(t *testing.T) {
	svc, store, _ := newTestService(listing.Doctor)
	ctx := context.Background()

	if _, err := svc.Create(ctx, 1, doctorInput()); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	for i := 0; i < 3; i++ {
		items, err := svc.Latest(ctx)
		if err != nil || len(items) != 1 {
			t.Fatalf("Latest = %v, %v", items, err)
		}
	}
	if store.latestCalls != 1 {
		t.Fatalf("store hit %d times, want 1", store.latestCalls)
	}

	if _, err := svc.Create(ctx, 1, doctorInput()); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	items, _ := svc.Latest(ctx)
	if len(items) != 2 || store.latestCalls != 2 {
		t.Fatalf("cache not invalidated: items=%d calls=%d", len(items), store.latestCalls)
	}
	if items[0].Slug != "jane-doe-cardiology-1" {
		t.Fatalf("latest should be newest first, got %q", items[0].Slug)
	}
}

func TestLatest_WriteDuringReadNotCached(t *testing.T) {
	svc, store, _ := newTestService(listing.Doctor)
	ctx := context.Background()

	if _, err := svc.Create(ctx, 1, doctorInput()); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	store.afterLatest = func() {
		if _, err := svc.Create(ctx, 1, doctorInput()); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}
	if items, _ := svc.Latest(ctx); len(items) != 1 {
		t.Fatalf("first read = %d items, want 1", len(items))
	}

	items, _ := svc.Latest(ctx)
	if len(items) != 2 || store.latestCalls != 2 {
		t.Fatalf("stale read was cached: items=%d calls=%d", len(items), store.latestCalls)
	}
}

func TestDirectory(t *testing.T) {
	doctors, _, _ := newTestService(listing.Doctor)
	clinics, _, _ := newTestService(listing.Clinic)
	hospitals, _, _ := newTestService(listing.Hospital)
	dir := NewDirectory(doctors, clinics, hospitals)
	ctx := context.Background()

	_, _ = doctors.Create(ctx, 4, doctorInput())
	_, _ = clinics.Create(ctx, 4, Input{Values: map[string]string{"name": "C", "type": "T", "area": "A"}})
	_, _ = hospitals.Create(ctx, 5, Input{Values: map[string]string{"name": "H", "type": "T", "area": "A"}})

	mine, err := dir.OwnerListings(ctx, 4)
	if err != nil {
		t.Fatalf("OwnerListings error: %v", err)
	}
	if len(mine) != 2 || mine[0].Kind != listing.KindDoctor || mine[1].Kind != listing.KindClinic {
		t.Fatalf("unexpected owner listings %+v", mine)
	}

	if _, err := dir.Search(ctx, "pharmacy", listing.SearchQuery{}); !errors.Is(err, listing.ErrUnknownKind) {
		t.Fatalf("got %v, want ErrUnknownKind", err)
	}
	found, err := dir.Search(ctx, "Hospital", listing.SearchQuery{Area: "a"})
	if err != nil || len(found) != 1 {
		t.Fatalf("search hospitals = %v, %v", found, err)
	}
}
