package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/docdirectory/internal/config"
	"github.com/geocoder89/docdirectory/internal/domain/listing"
	"github.com/geocoder89/docdirectory/internal/http/middlewares"
	"github.com/geocoder89/docdirectory/internal/service"
	"github.com/geocoder89/docdirectory/internal/slug"
	"github.com/geocoder89/docdirectory/internal/storage"
	"github.com/gin-gonic/gin"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const storeTimeout = 3 * time.Second

// ListingService is the per-variant surface the handler needs; *service.ListingService implements it.
type ListingService interface {
	Schema() listing.Schema
	Create(ctx context.Context, ownerID int64, in service.Input) (listing.Created, error)
	GetByIdentity(ctx context.Context, slug string, scope map[string]string) (listing.Listing, error)
	GetByID(ctx context.Context, id int64) (listing.Listing, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]listing.Listing, error)
	Filter(ctx context.Context, f listing.Filter) ([]listing.Listing, error)
	Latest(ctx context.Context) ([]listing.Summary, error)
	Update(ctx context.Context, ownerID, id int64, in service.Input) (string, error)
	Delete(ctx context.Context, ownerID, id int64) error
}

type ListingsHandler struct {
	svc    ListingService
	schema listing.Schema
	title  string
	log    *slog.Logger
}

func NewListingsHandler(svc ListingService, log *slog.Logger) *ListingsHandler {
	if log == nil {
		log = slog.Default()
	}
	schema := svc.Schema()
	return &ListingsHandler{
		svc:    svc,
		schema: schema,
		title:  cases.Title(language.English).String(string(schema.Kind)),
		log:    log,
	}
}

func (h *ListingsHandler) Schema() listing.Schema { return h.schema }

func (h *ListingsHandler) Create(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Access denied. No token provided.")
		return
	}

	in, ok := h.bindInput(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer cancel()

	created, err := h.svc.Create(cctx, userID, in)
	if err != nil {
		h.respondWriteError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, created)
}

// Filter serves GET /api/<plural>?name=&area=&category|type=.
func (h *ListingsHandler) Filter(ctx *gin.Context) {
	f := listing.Filter{
		Name: strings.TrimSpace(ctx.Query(listing.KeyName)),
		Area: strings.TrimSpace(ctx.Query(listing.KeyArea)),
		Key:  strings.TrimSpace(ctx.Query(h.schema.FilterKey)),
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	items, err := h.svc.Filter(cctx, f)
	if err != nil {
		h.internal(ctx, "filter", err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, items)
}

func (h *ListingsHandler) Latest(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	items, err := h.svc.Latest(cctx)
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "latest listings failed", "err", err)
		RespondInternal(ctx, "Failed to fetch latest "+h.schema.Plural)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, items)
}

func (h *ListingsHandler) Mine(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Access denied. No token provided.")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	items, err := h.svc.ListByOwner(cctx, userID)
	if err != nil {
		h.internal(ctx, "list by owner", err)
		return
	}

	ctx.JSON(http.StatusOK, items)
}

// GetByIdentity serves the public URLs. The first path segment is always the area;
// doctors ignore it and match on category alone.
func (h *ListingsHandler) GetByIdentity(ctx *gin.Context) {
	scope := map[string]string{
		listing.KeyArea:     ctx.Param("key"),
		listing.KeyCategory: ctx.Param("category"),
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	l, err := h.svc.GetByIdentity(cctx, ctx.Param("slug"), scope)
	if err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			RespondNotFound(ctx, h.title+" not found")
			return
		}
		h.internal(ctx, "get by identity", err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, l)
}

func (h *ListingsHandler) GetByID(ctx *gin.Context) {
	id, ok := parseID(ctx.Param("key"))
	if !ok {
		RespondNotFound(ctx, h.title+" not found")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	l, err := h.svc.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			RespondNotFound(ctx, h.title+" not found")
			return
		}
		h.internal(ctx, "get by id", err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, l)
}

func (h *ListingsHandler) Update(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Access denied. No token provided.")
		return
	}

	id, ok := parseID(ctx.Param("key"))
	if !ok {
		h.forbidden(ctx)
		return
	}

	in, ok := h.bindInput(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer cancel()

	newSlug, err := h.svc.Update(cctx, userID, id, in)
	if err != nil {
		h.respondWriteError(ctx, err)
		return
	}

	RespondMessage(ctx, http.StatusOK, h.title+" updated successfully", gin.H{"slug": newSlug})
}

func (h *ListingsHandler) Delete(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Access denied. No token provided.")
		return
	}

	id, ok := parseID(ctx.Param("key"))
	if !ok {
		h.forbidden(ctx)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	if err := h.svc.Delete(cctx, userID, id); err != nil {
		h.respondWriteError(ctx, err)
		return
	}

	RespondMessage(ctx, http.StatusOK, h.title+" deleted successfully", nil)
}

// bindInput accepts multipart forms (with image files), urlencoded forms and JSON objects.
// Only keys present in the request end up in Input.Values.
func (h *ListingsHandler) bindInput(ctx *gin.Context) (service.Input, bool) {
	in := service.Input{
		Values: make(map[string]string),
		Files:  make(map[string]storage.Upload),
	}

	switch ctx.ContentType() {
	case gin.MIMEMultipartPOSTForm:
		form, err := ctx.MultipartForm()
		if err != nil {
			RespondBadRequest(ctx, "Invalid form data", gin.H{"reason": err.Error()})
			return in, false
		}
		for _, key := range h.schema.TextKeys() {
			if vals, ok := form.Value[key]; ok && len(vals) > 0 {
				in.Values[key] = vals[0]
			}
		}
		for _, key := range h.schema.ImageKeys() {
			if files := form.File[key]; len(files) > 0 {
				in.Files[key] = storage.FromFileHeader(files[0])
			}
		}

	case gin.MIMEPOSTForm:
		if err := ctx.Request.ParseForm(); err != nil {
			RespondBadRequest(ctx, "Invalid form data", gin.H{"reason": err.Error()})
			return in, false
		}
		for _, key := range h.schema.TextKeys() {
			if vals, ok := ctx.Request.PostForm[key]; ok && len(vals) > 0 {
				in.Values[key] = vals[0]
			}
		}

	default:
		var body map[string]any
		if err := ctx.ShouldBindJSON(&body); err != nil {
			RespondBadRequest(ctx, "Invalid request body", parseBindError(err, &body))
			return in, false
		}
		for _, key := range h.schema.TextKeys() {
			if s, ok := scalarString(body[key]); ok {
				in.Values[key] = s
			}
		}
	}

	return in, true
}

func (h *ListingsHandler) respondWriteError(ctx *gin.Context, err error) {
	var ve *listing.ValidationError

	switch {
	case errors.As(err, &ve):
		RespondBadRequest(ctx, h.requiredMessage(), gin.H{"fields": ve.Fields})
	case errors.Is(err, slug.ErrInvalidName):
		RespondBadRequest(ctx, "Name must contain at least one letter or digit", nil)
	case errors.Is(err, storage.ErrInvalidUpload):
		RespondBadRequest(ctx, err.Error(), nil)
	case errors.Is(err, listing.ErrForbidden):
		h.forbidden(ctx)
	default:
		h.internal(ctx, "write", err)
	}
}

func (h *ListingsHandler) requiredMessage() string {
	if h.schema.Kind == listing.KindDoctor {
		return "Name, category, area, and specialization are required"
	}
	return "Name, type, and area are required"
}

func (h *ListingsHandler) forbidden(ctx *gin.Context) {
	RespondForbidden(ctx, "forbidden", "Unauthorized or "+string(h.schema.Kind)+" not found")
}

func (h *ListingsHandler) internal(ctx *gin.Context, op string, err error) {
	h.log.ErrorContext(ctx.Request.Context(), "listing request failed",
		"listing", string(h.schema.Kind), "op", op, "err", err)
	RespondInternal(ctx, "Internal server error")
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// scalarString flattens a decoded JSON value; null and composite values count as absent.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}
