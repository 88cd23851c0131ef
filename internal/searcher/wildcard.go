package searcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/grafana/regexp"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/result"
	apperrors "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/errors"
)

// WildcardSearcher runs queries where '?' matches exactly one character and
// '*' matches any run of characters, including none.
type WildcardSearcher struct {
	*engine
}

func OpenWildcard(indexPath string, opts ...Option) (*WildcardSearcher, error) {
	e, err := open(indexPath, opts)
	if err != nil {
		return nil, err
	}
	return &WildcardSearcher{engine: e}, nil
}

// SearchFileContent expands pattern against the term dictionary and scores
// every matching term together: a file's score is the sum of its per-term
// scores.
func (s *WildcardSearcher) SearchFileContent(ctx context.Context, pattern string, maxHits int) (*result.Container, error) {
	return s.search(ctx, ModeWildcard, pattern, maxHits, s.expand)
}

func (s *WildcardSearcher) expand(ctx context.Context, pattern string) ([]index.PostingList, error) {
	re, err := CompileWildcard(pattern)
	if err != nil {
		return nil, err
	}
	prefix := LiteralPrefix(pattern)

	var lists []index.PostingList
	for _, r := range s.readers {
		matched := 0
		for entry := range r.TermsFrom(prefix) {
			if !strings.HasPrefix(entry.Term, prefix) {
				break
			}
			if !re.MatchString(entry.Term) {
				continue
			}
			if matched%256 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			matched++
			pl, err := r.Postings(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", apperrors.ErrIO, err)
			}
			lists = append(lists, pl)
		}
	}
	return lists, nil
}

// CompileWildcard turns a wildcard pattern into an anchored expression.
// Everything except '?' and '*' is matched literally.
func CompileWildcard(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`^(?s:`)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`)$`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidArgument, "searcher.CompileWildcard", "pattern %q: %v", pattern, err)
	}
	return re, nil
}

// LiteralPrefix is the part of pattern before its first wildcard. Every
// matching term starts with it, which bounds the dictionary scan.
func LiteralPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?"); i >= 0 {
		return pattern[:i]
	}
	return pattern
}
