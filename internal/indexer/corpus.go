package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer/index"
)

// File is the extracted text of one discovered file. Source is the path
// relative to the research directory and doubles as the document ID.
type File struct {
	Source string
	Path   string
	Text   string
	Size   int64
}

// Failure records a file that could not be extracted.
type Failure struct {
	Path string
	Err  error
}

// ChunkOptions configure how files are split for the vector index.
type ChunkOptions struct {
	Size    int
	Overlap int
}

// Corpus is the searchable state of one research run: the extracted files
// and the two indexes built over them. It is read-only once built.
type Corpus struct {
	Root        string
	Fingerprint string
	Lexical     *index.Lexical
	Vector      *index.Vector
	Failures    []Failure
	// Cached is set when the lexical index was restored from a segment.
	Cached bool
	// BuildTimes holds how long each index took to build, by index name.
	BuildTimes map[string]time.Duration

	files  []File
	byName map[string]int
}

// NewCorpus indexes files. Files are ordered by source and a repeated
// source keeps its first occurrence. An empty file list gives a corpus
// whose indexes return nothing.
func NewCorpus(root string, files []File, opts ChunkOptions) *Corpus {
	return newCorpus(root, files, opts, nil)
}

// newCorpus is NewCorpus that restores the lexical index from snap instead
// of rebuilding it when snap is non-nil.
func newCorpus(root string, files []File, opts ChunkOptions, snap *index.Snapshot) *Corpus {
	sorted := make([]File, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, dup := seen[f.Source]; dup {
			continue
		}
		seen[f.Source] = struct{}{}
		sorted = append(sorted, f)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Source < sorted[j].Source })

	docs := make([]index.Document, len(sorted))
	byName := make(map[string]int, len(sorted))
	for i, f := range sorted {
		docs[i] = index.NewDocument(f.Source, f.Source, f.Text)
		byName[f.Source] = i
	}

	c := &Corpus{
		Root:        root,
		Fingerprint: Fingerprint(sorted),
		Lexical:     index.NewLexical(),
		Vector:      index.NewVector(),
		BuildTimes:  make(map[string]time.Duration, 2),
		files:       sorted,
		byName:      byName,
	}
	start := time.Now()
	if snap != nil {
		c.Lexical.Restore(*snap, docs)
		c.Cached = true
	} else {
		c.Lexical.Build(docs)
	}
	c.BuildTimes["lexical"] = time.Since(start)

	start = time.Now()
	c.Vector.Build(index.ChunkDocuments(docs, opts.Size, opts.Overlap))
	c.BuildTimes["vector"] = time.Since(start)
	return c
}

// Files returns the corpus files ordered by source.
func (c *Corpus) Files() []File {
	return c.files
}

// Text returns the full text of source.
func (c *Corpus) Text(source string) (string, bool) {
	i, ok := c.byName[source]
	if !ok {
		return "", false
	}
	return c.files[i].Text, true
}

func (c *Corpus) Len() int {
	return len(c.files)
}

// Fingerprint identifies a set of file contents independent of input order.
func Fingerprint(files []File) string {
	names := make([]int, len(files))
	for i := range files {
		names[i] = i
	}
	sort.Slice(names, func(a, b int) bool { return files[names[a]].Source < files[names[b]].Source })
	h := sha256.New()
	for _, i := range names {
		h.Write([]byte(files[i].Source))
		h.Write([]byte{0})
		sum := sha256.Sum256([]byte(files[i].Text))
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}
