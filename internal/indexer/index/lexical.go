package index

import (
	"sort"
	"sync"
)

// Lexical is an inverted index of term postings with the corpus statistics
// BM25 needs. Build replaces the whole index at once, so readers never see
// a partially indexed batch.
type Lexical struct {
	mu      sync.RWMutex
	index   map[string]map[string]*Posting
	docs    map[string]Document
	docLens map[string]int
	stats   Stats
	skipped int
}

func NewLexical() *Lexical {
	return &Lexical{
		index:   make(map[string]map[string]*Posting),
		docs:    make(map[string]Document),
		docLens: make(map[string]int),
		stats:   Stats{DocumentFrequency: make(map[string]int)},
	}
}

// Build indexes docs, replacing any previous contents. Documents with a
// duplicate ID are skipped. It returns the number of documents indexed.
func (l *Lexical) Build(docs []Document) int {
	idx := make(map[string]map[string]*Posting)
	byID := make(map[string]Document, len(docs))
	docLens := make(map[string]int, len(docs))
	df := make(map[string]int)
	totalLen := 0
	skipped := 0

	for _, doc := range docs {
		if _, dup := byID[doc.ID]; dup {
			skipped++
			continue
		}
		termData := make(map[string]*Posting)
		for _, token := range doc.Tokens {
			p, exists := termData[token.Term]
			if !exists {
				p = &Posting{
					DocID:     doc.ID,
					Positions: make([]int, 0, 4),
				}
				termData[token.Term] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, token.Position)
		}
		for term, posting := range termData {
			if _, exists := idx[term]; !exists {
				idx[term] = make(map[string]*Posting)
			}
			idx[term][doc.ID] = posting
			df[term]++
		}
		byID[doc.ID] = doc
		docLens[doc.ID] = len(doc.Tokens)
		totalLen += len(doc.Tokens)
	}

	stats := Stats{
		DocumentCount:     len(byID),
		DocumentFrequency: df,
	}
	if len(byID) > 0 {
		stats.AvgDocumentLength = float64(totalLen) / float64(len(byID))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.index = idx
	l.docs = byID
	l.docLens = docLens
	l.stats = stats
	l.skipped = skipped
	return len(byID)
}

// Restore rebuilds the index from a snapshot, attaching raw documents by
// ID where available so search results can carry content.
func (l *Lexical) Restore(snap Snapshot, docs []Document) {
	idx := make(map[string]map[string]*Posting, len(snap.Entries))
	df := make(map[string]int, len(snap.Entries))
	for _, entry := range snap.Entries {
		postings := make(map[string]*Posting, len(entry.Postings))
		for i := range entry.Postings {
			p := entry.Postings[i]
			postings[p.DocID] = &p
		}
		idx[entry.Term] = postings
		df[entry.Term] = len(postings)
	}

	raw := make(map[string]Document, len(docs))
	for _, doc := range docs {
		raw[doc.ID] = doc
	}
	byID := make(map[string]Document, len(snap.Docs))
	docLens := make(map[string]int, len(snap.Docs))
	totalLen := 0
	for _, ds := range snap.Docs {
		doc, ok := raw[ds.DocID]
		if !ok {
			doc = Document{ID: ds.DocID, Source: ds.Source}
		}
		byID[ds.DocID] = doc
		docLens[ds.DocID] = ds.DocLen
		totalLen += ds.DocLen
	}

	stats := Stats{DocumentCount: len(byID), DocumentFrequency: df}
	if len(byID) > 0 {
		stats.AvgDocumentLength = float64(totalLen) / float64(len(byID))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.index = idx
	l.docs = byID
	l.docLens = docLens
	l.stats = stats
	l.skipped = 0
}

// Postings returns the postings for term ordered by document ID.
func (l *Lexical) Postings(term string) PostingList {
	l.mu.RLock()
	defer l.mu.RUnlock()
	docs, exists := l.index[term]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

func (l *Lexical) Document(id string) (Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	doc, ok := l.docs[id]
	return doc, ok
}

func (l *Lexical) DocLength(id string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.docLens[id]
}

// Documents returns all indexed documents ordered by ID.
func (l *Lexical) Documents() []Document {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Document, 0, len(l.docs))
	for _, doc := range l.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Lexical) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

func (l *Lexical) DocCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats.DocumentCount
}

// Skipped reports how many documents the last Build dropped as duplicates.
func (l *Lexical) Skipped() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.skipped
}

// Snapshot returns the index contents sorted by term, suitable for
// writing as a segment.
func (l *Lexical) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := make([]TermEntry, 0, len(l.index))
	for term, docs := range l.index {
		postings := make(PostingList, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})

	docs := make([]DocStats, 0, len(l.docs))
	for id, doc := range l.docs {
		docs = append(docs, DocStats{DocID: id, Source: doc.Source, DocLen: l.docLens[id]})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocID < docs[j].DocID })
	return Snapshot{Entries: entries, Docs: docs}
}
