package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer/tokenizer"
)

// Posting records how often a term occurs in one document. Frequency is
// always at least 1; a missing posting means the term is absent.
type Posting struct {
	DocID     string `json:"id"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p,omitempty"`
}

type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}

type DocStats struct {
	DocID  string `json:"id"`
	Source string `json:"src"`
	DocLen int    `json:"len"`
}

// Document is one indexed unit: a whole file for the lexical index or a
// chunk of one for the vector index.
type Document struct {
	ID      string
	Source  string
	Tokens  []tokenizer.Token
	RawText string
}

// NewDocument tokenizes text and returns a Document whose ID is id.
func NewDocument(id, source, text string) Document {
	return Document{
		ID:      id,
		Source:  source,
		Tokens:  tokenizer.Tokenize(text),
		RawText: text,
	}
}

// Stats summarises a built index. It is replaced wholesale on every build.
type Stats struct {
	DocumentCount     int            `json:"document_count"`
	AvgDocumentLength float64        `json:"average_document_length"`
	DocumentFrequency map[string]int `json:"-"`
}

// Vocabulary returns every indexed term in ascending order.
func (s Stats) Vocabulary() []string {
	terms := make([]string, 0, len(s.DocumentFrequency))
	for term := range s.DocumentFrequency {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Snapshot is the serialisable form of a lexical index.
type Snapshot struct {
	Entries []TermEntry
	Docs    []DocStats
}
