package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

type FileLocator interface {
	URL(ctx context.Context, name string) (string, error)
}

// FilesHandler serves stored images: straight from disk for the local driver,
// or as a redirect to a presigned URL for object storage.
type FilesHandler struct {
	localDir string
	locator  FileLocator
}

func NewFilesHandler(localDir string, locator FileLocator) *FilesHandler {
	return &FilesHandler{localDir: localDir, locator: locator}
}

func (h *FilesHandler) Serve(ctx *gin.Context) {
	name := filepath.Base(strings.TrimPrefix(ctx.Param("name"), "/"))
	if name == "." || name == "/" || name == "" {
		RespondNotFound(ctx, "File not found")
		return
	}

	if h.localDir != "" {
		path := filepath.Join(h.localDir, name)
		if _, err := os.Stat(path); err != nil {
			RespondNotFound(ctx, "File not found")
			return
		}
		ctx.File(path)
		return
	}

	url, err := h.locator.URL(ctx.Request.Context(), name)
	if err != nil {
		RespondInternal(ctx, "Could not locate file")
		return
	}
	ctx.Redirect(http.StatusFound, url)
}

// SPAHandler serves a built frontend with index.html fallback. API paths never fall through to it.
type SPAHandler struct {
	dir string
}

func NewSPAHandler(dir string) *SPAHandler {
	return &SPAHandler{dir: dir}
}

func (h *SPAHandler) Serve(ctx *gin.Context) {
	p := ctx.Request.URL.Path
	if h.dir == "" || strings.HasPrefix(p, "/api/") || ctx.Request.Method != http.MethodGet {
		RespondNotFound(ctx, "Not found")
		return
	}

	clean := filepath.Clean("/" + p)
	candidate := filepath.Join(h.dir, clean)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		ctx.File(candidate)
		return
	}

	ctx.File(filepath.Join(h.dir, "index.html"))
}
