package bm25

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

const (
	defaultK1      = 1.5
	defaultB       = 0.75
	defaultEpsilon = 0.25
	defaultTopK    = 10
)

// Index is an Okapi BM25 index over a fixed corpus. It is immutable after
// construction and safe for concurrent readers.
type Index struct {
	chunks   []domain.Chunk
	termFreq []map[string]int
	docLen   []int
	avgLen   float64
	idf      map[string]float64

	k1 float64
	b  float64
}

type Options struct {
	K1      float64
	B       float64
	Epsilon float64
}

// New builds an index with the rank_bm25 Okapi defaults.
func New(chunks []domain.Chunk) *Index {
	return NewWithOptions(chunks, Options{K1: defaultK1, B: defaultB, Epsilon: defaultEpsilon})
}

// NewWithOptions takes B as given when it lies in [0, 1]; B=0 disables
// length normalization.

func NewWithOptions(chunks []domain.Chunk, opts Options) *Index {
	if opts.K1 <= 0 {
		opts.K1 = defaultK1
	}
	if opts.B < 0 || opts.B > 1 {
		opts.B = defaultB
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = defaultEpsilon
	}

	idx := &Index{
		chunks:   make([]domain.Chunk, len(chunks)),
		termFreq: make([]map[string]int, len(chunks)),
		docLen:   make([]int, len(chunks)),
		idf:      make(map[string]float64),
		k1:       opts.K1,
		b:        opts.B,
	}
	copy(idx.chunks, chunks)

	docFreq := make(map[string]int)
	totalLen := 0
	for i, chunk := range idx.chunks {
		tokens := Tokenize(chunk.Title + " " + chunk.Text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for tok := range tf {
			docFreq[tok]++
		}
		idx.termFreq[i] = tf
		idx.docLen[i] = len(tokens)
		totalLen += len(tokens)
	}
	if len(idx.chunks) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(idx.chunks))
	}

	// Terms present in more than half the corpus get a negative raw IDF;
	// they are floored to epsilon * mean IDF (or epsilon when the mean is not positive).
	n := float64(len(idx.chunks))
	idfSum := 0.0
	negative := make([]string, 0)
	for term, df := range docFreq {
		v := math.Log(n-float64(df)+0.5) - math.Log(float64(df)+0.5)
		idx.idf[term] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	if len(docFreq) > 0 {
		floor := opts.Epsilon * idfSum / float64(len(docFreq))
		if floor <= 0 {
			floor = opts.Epsilon
		}
		for _, term := range negative {
			idx.idf[term] = floor
		}
	}
	return idx
}

func (idx *Index) Size() int {
	return len(idx.chunks)
}

// Search returns the k best chunks for query. A query with no overlap still
// yields k chunks, all scored zero, in corpus order.
func (idx *Index) Search(_ context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	if len(idx.chunks) == 0 {
		return []domain.RetrievalResult{}, nil
	}
	if k <= 0 {
		k = defaultTopK
	}

	scores := idx.scores(Tokenize(query))
	order := make([]int, len(idx.chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	if k > len(order) {
		k = len(order)
	}

	out := make([]domain.RetrievalResult, 0, k)
	for _, docIdx := range order[:k] {
		out = append(out, domain.RetrievalResult{
			Chunk:  idx.chunks[docIdx],
			Score:  scores[docIdx],
			Source: domain.SourceLexical,
		})
	}
	return out, nil
}

func (idx *Index) scores(queryTokens []string) []float64 {
	out := make([]float64, len(idx.chunks))
	if len(queryTokens) == 0 || idx.avgLen == 0 {
		return out
	}
	for _, term := range queryTokens {
		idf, ok := idx.idf[term]
		if !ok {
			continue
		}
		for i, tf := range idx.termFreq {
			freq := float64(tf[term])
			if freq == 0 {
				continue
			}
			norm := idx.k1 * (1 - idx.b + idx.b*float64(idx.docLen[i])/idx.avgLen)
			out[i] += idf * (freq * (idx.k1 + 1)) / (freq + norm)
		}
	}
	return out
}

// Tokenize lowercases s and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
