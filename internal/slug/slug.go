package slug

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrInvalidName      = errors.New("name does not produce a valid slug")
	ErrTooManyConflicts = errors.New("slug conflicts exceeded max attempts")
)

// DefaultMaxAttempts bounds Resolver.Unique when MaxAttempts is zero.
const DefaultMaxAttempts = 1000

// Slugify lowercases s, folds accents to ASCII and joins words with hyphens.
// The result only contains [a-z0-9-] with no leading, trailing or doubled hyphens.
func Slugify(s string) (string, error) {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(strings.TrimSpace(s)),
	)
	if err != nil {
		return "", fmt.Errorf("slugify: %w", err)
	}

	var b strings.Builder
	b.Grow(len(folded))

	lastHyphen := true // suppresses a leading hyphen
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == '-' || r == '_' || unicode.IsSpace(r):
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "", ErrInvalidName
	}

	return out, nil
}

// Join slugifies every non-empty part and concatenates them with hyphens.
func Join(parts ...string) (string, error) {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return Slugify(strings.Join(kept, " "))
}

// TimestampSuffixer appends a unix-millisecond suffix to a base slug.
// Suffixes are strictly increasing for the lifetime of the value.
type TimestampSuffixer struct {
	now func() time.Time

	mu   sync.Mutex
	last int64
}

func NewTimestampSuffixer(now func() time.Time) *TimestampSuffixer {
	if now == nil {
		now = time.Now
	}
	return &TimestampSuffixer{now: now}
}

func (t *TimestampSuffixer) next() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ms := t.now().UnixMilli()
	if ms <= t.last {
		ms = t.last + 1
	}
	t.last = ms
	return ms
}

// Generate returns "<slug(name)>-<millis>".
func (t *TimestampSuffixer) Generate(name string) (string, error) {
	base, err := Slugify(name)
	if err != nil {
		return "", err
	}
	return base + "-" + strconv.FormatInt(t.next(), 10), nil
}

// Checker reports whether candidate is already taken in the lookup scope.
// The row with excludeID (if non-zero) is ignored so an update can keep its own slug.
type Checker interface {
	SlugExists(ctx context.Context, candidate string, scope map[string]string, excludeID int64) (bool, error)
}

type CheckerFunc func(ctx context.Context, candidate string, scope map[string]string, excludeID int64) (bool, error)

func (f CheckerFunc) SlugExists(ctx context.Context, candidate string, scope map[string]string, excludeID int64) (bool, error) {
	return f(ctx, candidate, scope, excludeID)
}

// Resolver finds the first free slug among base, base-1, base-2, ...
type Resolver struct {
	Checker     Checker
	MaxAttempts int
}

func (r Resolver) Unique(ctx context.Context, base string, scope map[string]string, excludeID int64) (string, error) {
	if base == "" {
		return "", ErrInvalidName
	}

	max := r.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}

	candidate := base
	for i := 1; i <= max; i++ {
		taken, err := r.Checker.SlugExists(ctx, candidate, scope, excludeID)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}

	return "", ErrTooManyConflicts
}
