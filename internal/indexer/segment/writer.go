package segment

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/index"
)

// MagicBytes identifies a valid .cseg segment file.
const (
	MagicBytes    uint32 = 0x43534547
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".cseg"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	CreatedAt  int64
	PostOffset int64
	PostSize   int64
	DocsOffset int64
	DocsSize   int64
	DictSize   int64
}

// DictOffset is where the dictionary starts; it follows the docs block.
func (h SegmentHeader) DictOffset() int64 {
	return h.DocsOffset + h.DocsSize
}

// DictEntry maps a term to its postings offset, length, and document frequency
// in the segment file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Writer creates new segment files inside one index directory.
type Writer struct {
	dataDir string
	seq     atomic.Uint64
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write creates a segment containing the given term entries and stored docs.
// An empty segment is valid: it represents an index with no documents.
func (w *Writer) Write(entries []index.TermEntry, docs []index.StoredDoc) (string, error) {
	b, err := w.Create()
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if err := b.Add(entry.Term, entry.Postings); err != nil {
			b.Abort()
			return "", err
		}
	}
	return b.Finish(docs)
}

// Create starts a streaming segment build. Terms must be added in ascending
// order. The file only becomes visible under its final name on Finish.
func (w *Writer) Create() (*Builder, error) {
	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating segment directory: %w", err)
	}
	name := fmt.Sprintf("seg_%d_%04d%s", time.Now().UnixNano(), w.seq.Add(1), Extension)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("creating temp segment file: %w", err)
	}
	b := &Builder{
		name:      name,
		finalPath: finalPath,
		tmpPath:   tmpPath,
		file:      f,
		buf:       bufio.NewWriterSize(f, 64*1024),
		offset:    int64(HeaderSize),
	}
	if _, err := b.buf.Write(make([]byte, HeaderSize)); err != nil {
		b.Abort()
		return nil, fmt.Errorf("writing header placeholder: %w", err)
	}
	return b, nil
}

// Builder streams postings into a temporary segment file.
type Builder struct {
	name      string
	finalPath string
	tmpPath   string
	file      *os.File
	buf       *bufio.Writer
	offset    int64
	dict      []DictEntry
	lastTerm  string
}

// Add appends the postings of one term.
func (b *Builder) Add(term string, postings index.PostingList) error {
	if len(b.dict) > 0 && term <= b.lastTerm {
		return fmt.Errorf("term %q added out of order after %q", term, b.lastTerm)
	}
	data, err := json.Marshal(postings)
	if err != nil {
		return fmt.Errorf("marshaling postings for term %q: %w", term, err)
	}
	if _, err := b.buf.Write(data); err != nil {
		return fmt.Errorf("writing postings for term %q: %w", term, err)
	}
	b.dict = append(b.dict, DictEntry{
		Term:       term,
		PostOffset: b.offset - int64(HeaderSize),
		PostLen:    len(data),
		DocFreq:    len(postings),
	})
	b.offset += int64(len(data))
	b.lastTerm = term
	return nil
}

// Finish writes the stored docs, dictionary, footer and header, syncs the
// file and renames it into place. It returns the segment's file name.
func (b *Builder) Finish(docs []index.StoredDoc) (string, error) {
	header := SegmentHeader{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(b.dict)),
		DocCount:   uint32(len(docs)),
		CreatedAt:  time.Now().Unix(),
		PostOffset: int64(HeaderSize),
		PostSize:   b.offset - int64(HeaderSize),
		DocsOffset: b.offset,
	}
	if docs == nil {
		docs = []index.StoredDoc{}
	}
	docsData, err := json.Marshal(docs)
	if err != nil {
		b.Abort()
		return "", fmt.Errorf("marshaling stored docs: %w", err)
	}
	if _, err := b.buf.Write(docsData); err != nil {
		b.Abort()
		return "", fmt.Errorf("writing stored docs: %w", err)
	}
	header.DocsSize = int64(len(docsData))

	dict := b.dict
	if dict == nil {
		dict = []DictEntry{}
	}
	dictData, err := json.Marshal(dict)
	if err != nil {
		b.Abort()
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := b.buf.Write(dictData); err != nil {
		b.Abort()
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	header.DictSize = int64(len(dictData))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], crc32.ChecksumIEEE(docsData))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(header.DictOffset()))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(header.DictSize))
	binary.LittleEndian.PutUint32(footer[24:28], MagicBytes)
	if _, err := b.buf.Write(footer); err != nil {
		b.Abort()
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if err := b.buf.Flush(); err != nil {
		b.Abort()
		return "", fmt.Errorf("flushing segment: %w", err)
	}
	if _, err := b.file.WriteAt(encodeHeader(header), 0); err != nil {
		b.Abort()
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := b.file.Sync(); err != nil {
		b.Abort()
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := b.file.Close(); err != nil {
		os.Remove(b.tmpPath)
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(b.tmpPath, b.finalPath); err != nil {
		os.Remove(b.tmpPath)
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return b.name, nil
}

// Abort discards a partially written segment.
func (b *Builder) Abort() {
	b.file.Close()
	os.Remove(b.tmpPath)
}

func encodeHeader(h SegmentHeader) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.DocsOffset))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(h.DocsSize))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(h.DictSize))
	return buf
}

func decodeHeader(buf []byte) SegmentHeader {
	return SegmentHeader{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint32(buf[4:8]),
		TermCount:  binary.LittleEndian.Uint32(buf[8:12]),
		DocCount:   binary.LittleEndian.Uint32(buf[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(buf[16:24])),
		PostOffset: int64(binary.LittleEndian.Uint64(buf[24:32])),
		PostSize:   int64(binary.LittleEndian.Uint64(buf[32:40])),
		DocsOffset: int64(binary.LittleEndian.Uint64(buf[40:48])),
		DocsSize:   int64(binary.LittleEndian.Uint64(buf[48:56])),
		DictSize:   int64(binary.LittleEndian.Uint64(buf[56:64])),
	}
}
