// Package export expands search hits into per-line findings by re-reading
// each hit file and locating the tokens that matched.
package export

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/filetree"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/result"
	apperrors "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/errors"
)

// FindingInFile locates one matching token. Line is 1-based; Position and
// Length count characters within the line.
type FindingInFile struct {
	Line     int `json:"line"`
	Position int `json:"position"`
	Length   int `json:"length"`
}

// DetailedResult is a search hit with its findings. Err is set, and
// Findings empty, when the file could no longer be read.
type DetailedResult struct {
	FileName string          `json:"file_name"`
	Path     string          `json:"path"`
	Score    float32         `json:"score"`
	Findings []FindingInFile `json:"findings"`
	Err      error           `json:"-"`
}

type options struct {
	workers  int
	readFile func(path string) ([]byte, error)
}

type Option func(*options)

func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithReadFile replaces os.ReadFile, mainly for tests.
func WithReadFile(fn func(path string) ([]byte, error)) Option {
	return func(o *options) { o.readFile = fn }
}

// Export returns one DetailedResult per hit in rank order. Files are read
// concurrently. Only an invalid pattern or a cancelled ctx fail the call.
func Export(ctx context.Context, c *result.Container, pattern string, wildcard bool, opts ...Option) ([]DetailedResult, error) {
	if c == nil {
		return nil, apperrors.New(apperrors.ErrInvalidArgument, "export.Export", "no result container")
	}
	if pattern == "" {
		return nil, apperrors.New(apperrors.ErrInvalidArgument, "export.Export", "pattern is empty")
	}
	o := options{workers: 4, readFile: os.ReadFile}
	for _, opt := range opts {
		opt(&o)
	}
	match, err := matcher(strings.ToLower(pattern), wildcard)
	if err != nil {
		return nil, err
	}

	hits := c.Results()
	out := make([]DetailedResult, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.workers, 1))
	for i, hit := range hits {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = detail(hit, o.readFile, match)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func matcher(pattern string, wildcard bool) (func(string) bool, error) {
	if !wildcard {
		return func(term string) bool { return term == pattern }, nil
	}
	re, err := searcher.CompileWildcard(pattern)
	if err != nil {
		return nil, err
	}
	return re.MatchString, nil
}

func detail(hit result.Result, readFile func(string) ([]byte, error), match func(string) bool) DetailedResult {
	d := DetailedResult{FileName: hit.FileName, Path: hit.Path, Score: hit.Score, Findings: []FindingInFile{}}
	path := hit.Path
	if path == "" {
		path = hit.FileName
	}
	data, err := readFile(path)
	if err != nil {
		d.Err = fmt.Errorf("%w: %s: %v", apperrors.ErrFileAccess, path, err)
		return d
	}
	for tok := range tokenizer.Tokenize(strings.NewReader(filetree.Decode(data))) {
		if match(strings.ToLower(tok.Text)) {
			d.Findings = append(d.Findings, FindingInFile{Line: tok.Line, Position: tok.Offset, Length: tok.Length})
		}
	}
	return d
}
