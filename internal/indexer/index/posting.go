package index

// DocID is the engine-internal document number. IDs are assigned in
// insertion order and never reused within one index build.
type DocID uint32

type Posting struct {
	DocID     DocID `json:"d"`
	Frequency int   `json:"f"`
	Positions []int `json:"p,omitempty"`
}

type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}

// StoredDoc is the stored-field record kept per document: the lower-cased
// path used for matching, the path as found on disk, and the token count
// used for length normalisation.
type StoredDoc struct {
	ID     DocID  `json:"id"`
	Path   string `json:"path"`
	Source string `json:"src,omitempty"`
	Length int    `json:"len"`
}

// SourcePath returns the on-disk spelling of the path, falling back to the
// stored lower-cased one.
func (d StoredDoc) SourcePath() string {
	if d.Source != "" {
		return d.Source
	}
	return d.Path
}
