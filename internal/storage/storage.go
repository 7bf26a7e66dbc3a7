package storage

import (
	"context"
	"io"
	"mime/multipart"
)

// Storage persists uploaded listing images under a flat filename.
type Storage interface {
	Save(ctx context.Context, name string, r io.Reader) error
	Delete(ctx context.Context, name string) error
	// URL returns where a client can fetch the stored file.
	URL(ctx context.Context, name string) (string, error)
}

// Upload is a file received from a multipart form, opened lazily.
type Upload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

func FromFileHeader(h *multipart.FileHeader) Upload {
	return Upload{
		Filename: h.Filename,
		Size:     h.Size,
		Open: func() (io.ReadCloser, error) {
			return h.Open()
		},
	}
}
