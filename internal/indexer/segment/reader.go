// Package segment implements the immutable on-disk segment format: a binary
// header, per-term JSON postings, the stored-doc block, a sorted term
// dictionary and a checksummed footer.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"iter"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/index"
)

// Reader serves lookups from one segment file. It is safe for concurrent use.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	docs     []index.StoredDoc
	totalLen int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	if info.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("invalid segment file %s: truncated (%d bytes)", path, info.Size())
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, info.Size()-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("reading segment footer: %w", err)
	}
	if binary.LittleEndian.Uint32(footer[24:28]) != MagicBytes {
		return nil, fmt.Errorf("invalid segment file %s: bad footer", path)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset()); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	if crc32.ChecksumIEEE(dictBytes) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("segment %s: dictionary checksum mismatch", path)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}

	docsBytes := make([]byte, header.DocsSize)
	if _, err := f.ReadAt(docsBytes, header.DocsOffset); err != nil {
		return nil, fmt.Errorf("reading stored docs: %w", err)
	}
	if crc32.ChecksumIEEE(docsBytes) != binary.LittleEndian.Uint32(footer[4:8]) {
		return nil, fmt.Errorf("segment %s: stored docs checksum mismatch", path)
	}
	var docs []index.StoredDoc
	if err := json.Unmarshal(docsBytes, &docs); err != nil {
		return nil, fmt.Errorf("parsing stored docs: %w", err)
	}
	var totalLen int64
	for _, d := range docs {
		totalLen += int64(d.Length)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		docs:     docs,
		totalLen: totalLen,
	}, nil
}

func (r *Reader) Search(term string) (index.PostingList, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return nil, nil
	}
	return r.postings(r.dict[idx])
}

func (r *Reader) postings(entry DictEntry) (index.PostingList, error) {
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", entry.Term, err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings for %q: %w", entry.Term, err)
	}
	return postings, nil
}

// Terms yields every dictionary entry in ascending term order.
func (r *Reader) Terms() iter.Seq[DictEntry] {
	return func(yield func(DictEntry) bool) {
		for _, e := range r.dict {
			if !yield(e) {
				return
			}
		}
	}
}

// TermsFrom yields dictionary entries with Term >= from in ascending order.
func (r *Reader) TermsFrom(from string) iter.Seq[DictEntry] {
	start := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= from
	})
	return func(yield func(DictEntry) bool) {
		for _, e := range r.dict[start:] {
			if !yield(e) {
				return
			}
		}
	}
}

// Postings reads the posting list of a dictionary entry from this segment.
func (r *Reader) Postings(entry DictEntry) (index.PostingList, error) {
	return r.postings(entry)
}

// Doc returns the stored fields of a document held by this segment.
func (r *Reader) Doc(id index.DocID) (index.StoredDoc, bool) {
	i := sort.Search(len(r.docs), func(i int) bool {
		return r.docs[i].ID >= id
	})
	if i < len(r.docs) && r.docs[i].ID == id {
		return r.docs[i], true
	}
	return index.StoredDoc{}, false
}

func (r *Reader) Docs() []index.StoredDoc {
	return r.docs
}

func (r *Reader) TermCount() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

// TotalLength is the sum of token counts over all docs in the segment.
func (r *Reader) TotalLength() int64 {
	return r.totalLen
}

func (r *Reader) Name() string {
	return filepath.Base(r.filePath)
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}
