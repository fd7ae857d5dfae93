// Package application contains the application services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

const delimiter = "/"

// Resolver expands logical path patterns into concrete file references.
type Resolver struct {
	lister  output.BlobLister
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewResolver creates a new pattern resolver.
func NewResolver(lister output.BlobLister, metrics output.MetricsCollector, logger *slog.Logger) *Resolver {
	return &Resolver{
		lister:  lister,
		metrics: metrics,
		logger:  logger,
	}
}

// Resolve unpacks the logical path and resolves its pattern.
func (r *Resolver) Resolve(ctx context.Context, logicalPath string) ([]domain.FileRef, error) {
	lp, err := domain.UnpackPath(logicalPath)
	if err != nil {
		return nil, err
	}
	return r.ResolvePath(ctx, lp)
}

// ResolvePath lists the container and returns every object matching the
// pattern, in listing order.
//
// When no directory segment of the pattern holds a wildcard, a single flat
// listing bounded by the literal directory prefix is issued. Otherwise the
// first wildcard directory is expanded with one delimiter-bounded listing,
// and each matching directory is listed flat. Only one level is expanded.
func (r *Resolver) ResolvePath(ctx context.Context, lp domain.LogicalPath) ([]domain.FileRef, error) {
	r.logger.Info("resolving files", "account", lp.Account, "container", lp.Container, "pattern", lp.Pattern)

	pattern := lp.Pattern
	if strings.HasSuffix(pattern, delimiter) {
		pattern += "*"
	}
	if pattern == "" {
		pattern = "*"
	}

	matcher, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}

	segments := strings.Split(pattern, delimiter)
	dirs := segments[:len(segments)-1]

	var refs []domain.FileRef
	idx := firstWildcard(dirs)
	if idx < 0 {
		refs, err = r.collect(ctx, lp.Container, joinPrefix(dirs), matcher)
		if err != nil {
			return nil, err
		}
	} else {
		refs, err = r.expand(ctx, lp.Container, joinPrefix(dirs[:idx]), dirs[idx], matcher)
		if err != nil {
			return nil, err
		}
	}

	r.metrics.SetFilesResolved(len(refs))
	r.logger.Info("files resolved", "container", lp.Container, "count", len(refs))
	return refs, nil
}

// expand lists one level below parent, keeps the directories matching
// segment and collects the matching objects of each.
func (r *Resolver) expand(ctx context.Context, container, parent, segment string, matcher glob.Glob) ([]domain.FileRef, error) {
	dirMatcher, err := compileGlob(parent + segment + delimiter)
	if err != nil {
		return nil, err
	}

	entries, err := r.list(ctx, container, output.ListOptions{Prefix: parent, Delimiter: delimiter})
	if err != nil {
		return nil, err
	}

	var refs []domain.FileRef
	for _, entry := range entries {
		if !entry.IsPrefix || !dirMatcher.Match(entry.Key) {
			continue
		}

		r.logger.Info("expanding directory", "container", container, "prefix", entry.Key)
		found, err := r.collect(ctx, container, entry.Key, matcher)
		if err != nil {
			return nil, err
		}
		refs = append(refs, found...)
	}

	return refs, nil
}

// collect lists everything below prefix and keeps the objects matching matcher.
func (r *Resolver) collect(ctx context.Context, container, prefix string, matcher glob.Glob) ([]domain.FileRef, error) {
	objects, err := r.list(ctx, container, output.ListOptions{Prefix: prefix})
	if err != nil {
		return nil, err
	}

	var refs []domain.FileRef
	for _, obj := range objects {
		if obj.IsPrefix || !matcher.Match(obj.Key) {
			continue
		}
		refs = append(refs, domain.FileRef{Container: container, Name: obj.Key})
	}

	r.logger.Debug("listed prefix", "container", container, "prefix", prefix,
		"objects", len(objects), "matched", len(refs))
	return refs, nil
}

func (r *Resolver) list(ctx context.Context, container string, opts output.ListOptions) ([]output.StorageObject, error) {
	start := time.Now()
	objects, err := r.lister.List(ctx, container, opts)
	r.metrics.ObserveStorageDuration("list", time.Since(start))
	r.metrics.IncStorageOperations("list", err == nil)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Key: container + delimiter + opts.Prefix, Err: err}
	}
	return objects, nil
}

// maxClassRunes bounds how far a character class with several ranges is
// expanded into an explicit rune list.
const maxClassRunes = 4096

// compileGlob compiles a shell-style pattern with fnmatch semantics: * also
// matches the delimiter, an unclosed [ and a backslash are literal, and
// braces carry no meaning.
func compileGlob(pattern string) (glob.Glob, error) {
	translated, ok, err := translateGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", domain.ErrInvalidPattern, pattern, err)
	}
	if !ok {
		return noMatch{}, nil
	}
	g, err := glob.Compile(translated)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", domain.ErrInvalidPattern, pattern, err)
	}
	return g, nil
}

// noMatch is the glob of a pattern holding an empty character class.
type noMatch struct{}

func (noMatch) Match(string) bool { return false }

// translateGlob rewrites an fnmatch pattern into gobwas/glob syntax. It
// reports false when the pattern can never match.
func translateGlob(pattern string) (string, bool, error) {
	p := []rune(pattern)
	var b strings.Builder
	matchable := true

	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '*', '?':
			b.WriteRune(c)
		case '[':
			end := classEnd(p, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class, ok, err := translateClass(p[i+1 : end])
			if err != nil {
				return "", false, err
			}
			matchable = matchable && ok
			b.WriteString(class)
			i = end
		default:
			writeLiteral(&b, c)
		}
	}
	return b.String(), matchable, nil
}

// classEnd returns the index of the bracket closing the class opened at
// p[start], or -1 when the class is never closed. A ] right after the
// opening bracket (or after !) belongs to the class.
func classEnd(p []rune, start int) int {
	j := start + 1
	if j < len(p) && p[j] == '!' {
		j++
	}
	if j < len(p) && p[j] == ']' {
		j++
	}
	for ; j < len(p); j++ {
		if p[j] == ']' {
			return j
		}
	}
	return -1
}

type runeRange struct{ lo, hi rune }

// translateClass rewrites the body of a bracket expression. gobwas/glob
// takes either one range or a plain list, so classes mixing both are
// expanded into a list.
func translateClass(body []rune) (string, bool, error) {
	negated := len(body) > 0 && body[0] == '!'
	if negated {
		body = body[1:]
	}

	var ranges []runeRange
	for i := 0; i < len(body); i++ {
		if i+2 < len(body) && body[i+1] == '-' {
			if body[i] <= body[i+2] {
				ranges = append(ranges, runeRange{body[i], body[i+2]})
			}
			i += 2
			continue
		}
		ranges = append(ranges, runeRange{body[i], body[i]})
	}

	if len(ranges) == 0 {
		if negated {
			return "?", true, nil
		}
		return "", false, nil
	}

	not := ""
	if negated {
		not = "!"
	}
	if r := ranges[0]; len(ranges) == 1 && r.lo < r.hi && (negated || r.lo != '!') {
		return "[" + not + string(r.lo) + "-" + string(r.hi) + "]", true, nil
	}

	seen := make(map[rune]bool)
	var list []rune
	for _, r := range ranges {
		if int(r.hi-r.lo)+len(list) >= maxClassRunes {
			return "", false, fmt.Errorf("character class too large")
		}
		for c := r.lo; c <= r.hi; c++ {
			if !seen[c] {
				seen[c] = true
				list = append(list, c)
			}
		}
	}

	var b strings.Builder
	b.WriteString("[" + not)
	// A leading unescaped - keeps the list from reading as a range.
	if seen['-'] {
		b.WriteRune('-')
	}
	for _, c := range list {
		switch c {
		case '-':
		case ']', '\\', '!':
			b.WriteRune('\\')
			b.WriteRune(c)
		default:
			b.WriteRune(c)
		}
	}
	b.WriteString("]")
	return b.String(), true, nil
}

func writeLiteral(b *strings.Builder, c rune) {
	switch c {
	case '\\', '*', '?', '[', ']', '{', '}', ',':
		b.WriteRune('\\')
	}
	b.WriteRune(c)
}

func firstWildcard(segments []string) int {
	for i, s := range segments {
		if hasWildcard(s) {
			return i
		}
	}
	return -1
}

// hasWildcard reports whether s holds a *, a ? or a closed bracket expression.
func hasWildcard(s string) bool {
	p := []rune(s)
	for i, c := range p {
		switch {
		case c == '*' || c == '?':
			return true
		case c == '[' && classEnd(p, i) >= 0:
			return true
		}
	}
	return false
}

func joinPrefix(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	return strings.Join(segments, delimiter) + delimiter
}
