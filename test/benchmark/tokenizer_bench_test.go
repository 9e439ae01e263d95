package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The login handler validates the session token",
	"medium": `The research controller plans a set of strategies for each query,
        runs them concurrently and merges their results. Relevant results feed the
        analyzer, which extracts themes, keywords and code elements and proposes
        follow-up questions. The controller iterates on the first follow-up until
        the iteration budget is spent or nothing new turns up.`,
	"long": strings.Repeat(`Lexical ranking uses BM25 over whole files while the vector
        index scores overlapping word chunks with sparse tf-idf cosine similarity.
        Hybrid search fuses both rankings with fixed weights and keeps the best chunk
        per file. Direct matching scans lines for query terms and reports the line
        number of every hit so the report can point at the exact location. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tokenizer.Tokenize(text)
		}
	})
}

func BenchmarkChunk(b *testing.B) {
	text := sampleTexts["long"]
	for _, size := range []int{50, 100, 200} {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = tokenizer.Chunk(text, size, size/10)
			}
		})
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "research controller strategy analyzer confidence "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}
