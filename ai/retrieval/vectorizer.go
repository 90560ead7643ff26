// Package retrieval ranks conversation turns and schema descriptions
// against the current question with character n-gram TF-IDF and cosine
// similarity. Retrieval is an optimization: every failure path degrades to
// an empty hint list, never an error the caller must handle.
package retrieval

import (
	"math"
	"strings"
)

// Vector is a sparse L2-normalized term-weight vector keyed by vocabulary
// index.
type Vector map[int]float64

// Vectorizer is a fixed-vocabulary character n-gram (n in {2,3}) TF-IDF
// transform. It is fit exactly once on a seed corpus and is read-only
// afterwards, so scores stay comparable across turns and goroutines.
type Vectorizer struct {
	vocabulary map[string]int
	idf        []float64
}

// NewVectorizer fits the vocabulary and inverse document frequencies on the
// seed corpus. Call once at startup and share the result.
func NewVectorizer(seedCorpus []string) *Vectorizer {
	vocabulary := make(map[string]int)
	documentFreq := []int{}

	for _, doc := range seedCorpus {
		seen := map[int]bool{}
		for _, gram := range ngrams(doc) {
			idx, ok := vocabulary[gram]
			if !ok {
				idx = len(vocabulary)
				vocabulary[gram] = idx
				documentFreq = append(documentFreq, 0)
			}
			if !seen[idx] {
				documentFreq[idx]++
				seen[idx] = true
			}
		}
	}

	docs := float64(len(seedCorpus))
	idf := make([]float64, len(documentFreq))
	for i, df := range documentFreq {
		// Smoothed IDF keeps unseen-in-few-docs grams finite.
		idf[i] = math.Log((1+docs)/(1+float64(df))) + 1
	}

	return &Vectorizer{vocabulary: vocabulary, idf: idf}
}

// Transform maps text onto the fitted vocabulary. Out-of-vocabulary grams
// are dropped; an all-OOV text yields an empty vector.
func (v *Vectorizer) Transform(text string) Vector {
	counts := map[int]float64{}
	total := 0.0
	for _, gram := range ngrams(text) {
		idx, ok := v.vocabulary[gram]
		if !ok {
			continue
		}
		counts[idx]++
		total++
	}
	if total == 0 {
		return Vector{}
	}

	vec := make(Vector, len(counts))
	norm := 0.0
	for idx, count := range counts {
		w := (count / total) * v.idf[idx]
		vec[idx] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return Vector{}
	}
	for idx := range vec {
		vec[idx] /= norm
	}
	return vec
}

// Cosine returns the similarity of two normalized vectors in [0, 1].
func Cosine(a, b Vector) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	dot := 0.0
	for idx, w := range a {
		dot += w * b[idx]
	}
	if dot < 0 {
		return 0
	}
	if dot > 1 {
		return 1
	}
	return dot
}

// ngrams emits lowercase character 2- and 3-grams over runes, whitespace
// collapsed so "1번 기계" and "1번  기계" vectorize identically.
func ngrams(text string) []string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	runes := []rune(normalized)
	var grams []string
	for n := 2; n <= 3; n++ {
		for i := 0; i+n <= len(runes); i++ {
			grams = append(grams, string(runes[i:i+n]))
		}
	}
	return grams
}
