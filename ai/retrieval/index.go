package retrieval

import "sort"

// Hint sources.
const (
	SourceConversation = "conversation"
	SourceSchema       = "schema"
)

// Hint is one ranked retrieval result handed to the SQL prompt builder.
type Hint struct {
	Source     string
	Text       string
	Similarity float64
	Payload    any
}

// Item is one indexable document.
type Item struct {
	Text    string
	Payload any
}

type indexedItem struct {
	item   Item
	vector Vector
}

// Index holds pre-transformed vectors for one corpus. Immutable after
// BuildIndex, safe for concurrent Query calls.
type Index struct {
	vectorizer *Vectorizer
	source     string
	items      []indexedItem
}

// BuildIndex transforms every item once. Items that vectorize to nothing
// are kept with an empty vector; they simply never rank.
func BuildIndex(vectorizer *Vectorizer, source string, items []Item) *Index {
	index := &Index{vectorizer: vectorizer, source: source}
	for _, item := range items {
		index.items = append(index.items, indexedItem{
			item:   item,
			vector: vectorizer.Transform(item.Text),
		})
	}
	return index
}

// Query ranks the corpus against the text by cosine similarity, descending,
// truncated to k. Zero-similarity items are omitted; an unusable query text
// returns no hints.
func (idx *Index) Query(text string, k int) []Hint {
	if idx == nil || k <= 0 {
		return nil
	}
	queryVec := idx.vectorizer.Transform(text)
	if len(queryVec) == 0 {
		return nil
	}

	var hints []Hint
	for _, indexed := range idx.items {
		similarity := Cosine(queryVec, indexed.vector)
		if similarity <= 0 {
			continue
		}
		hints = append(hints, Hint{
			Source:     idx.source,
			Text:       indexed.item.Text,
			Similarity: similarity,
			Payload:    indexed.item.Payload,
		})
	}
	sort.SliceStable(hints, func(i, j int) bool {
		return hints[i].Similarity > hints[j].Similarity
	})
	if len(hints) > k {
		hints = hints[:k]
	}
	return hints
}
