package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/docdirectory/internal/config"
	"github.com/geocoder89/docdirectory/internal/domain/listing"
	"github.com/geocoder89/docdirectory/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type DirectoryReader interface {
	OwnerListings(ctx context.Context, ownerID int64) ([]listing.Listing, error)
	Search(ctx context.Context, kind string, q listing.SearchQuery) ([]listing.Listing, error)
}

type DirectoryHandler struct {
	dir DirectoryReader
	log *slog.Logger
}

func NewDirectoryHandler(dir DirectoryReader, log *slog.Logger) *DirectoryHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DirectoryHandler{dir: dir, log: log}
}

// Search serves GET /api/search?category=doctor|clinic|hospital&area=&specialty=.
func (h *DirectoryHandler) Search(ctx *gin.Context) {
	q := listing.SearchQuery{
		Area:      strings.TrimSpace(ctx.Query("area")),
		Specialty: strings.TrimSpace(ctx.Query("specialty")),
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	items, err := h.dir.Search(cctx, ctx.Query("category"), q)
	if err != nil {
		if errors.Is(err, listing.ErrUnknownKind) {
			RespondBadRequest(ctx, "Invalid category", nil)
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "search failed", "err", err)
		RespondInternal(ctx, "Internal server error")
		return
	}

	ctx.JSON(http.StatusOK, items)
}

func (h *DirectoryHandler) UserListings(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Access denied. No token provided.")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	items, err := h.dir.OwnerListings(cctx, userID)
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "user listings failed", "user_id", userID, "err", err)
		RespondInternal(ctx, "Server error")
		return
	}

	ctx.JSON(http.StatusOK, items)
}
