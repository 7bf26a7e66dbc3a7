package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var ErrInvalidUpload = errors.New("invalid upload")

// sniffLen is how much of the file is read for content detection.
const sniffLen = 3072

type Constraints struct {
	AllowedMimeTypes map[string]bool
	MaxSize          int64
}

func ImageConstraints(maxSize int64) Constraints {
	if maxSize <= 0 {
		maxSize = 5 << 20
	}
	return Constraints{
		AllowedMimeTypes: map[string]bool{
			"image/jpeg": true,
			"image/png":  true,
			"image/webp": true,
			"image/gif":  true,
		},
		MaxSize: maxSize,
	}
}

// Uploader validates uploads and writes them to a Storage under generated names.
type Uploader struct {
	store       Storage
	constraints Constraints
	now         func() time.Time
}

func NewUploader(store Storage, constraints Constraints) *Uploader {
	return &Uploader{store: store, constraints: constraints, now: time.Now}
}

// Store returns the generated filename, "<unix millis>-<random><ext>".
func (u *Uploader) Store(ctx context.Context, up Upload) (string, error) {
	if up.Size > u.constraints.MaxSize {
		return "", fmt.Errorf("%w: %s exceeds %d MB", ErrInvalidUpload, up.Filename, u.constraints.MaxSize>>20)
	}

	f, err := up.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	if !u.allowed(mt) {
		return "", fmt.Errorf("%w: %s has unsupported type %s", ErrInvalidUpload, up.Filename, mt.String())
	}

	name := u.filename(mt.Extension())

	body := io.MultiReader(bytes.NewReader(head), io.LimitReader(f, u.constraints.MaxSize-int64(n)+1))
	if err := u.store.Save(ctx, name, body); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return name, nil
}

func (u *Uploader) Remove(ctx context.Context, name string) error {
	return u.store.Delete(ctx, name)
}

func (u *Uploader) URL(ctx context.Context, name string) (string, error) {
	return u.store.URL(ctx, name)
}

func (u *Uploader) allowed(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if u.constraints.AllowedMimeTypes[m.String()] {
			return true
		}
	}
	return false
}

// filename takes its extension from the sniffed type; the client's name is ignored.
func (u *Uploader) filename(ext string) string {
	return strconv.FormatInt(u.now().UnixMilli(), 10) + "-" + uuid.NewString()[:8] + ext
}
