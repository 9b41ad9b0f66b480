package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector size of the hash engine.
const DefaultHashDimensions = 512

// conceptWeight is the bucket weight a concept mention adds on top of the
// token itself.
const conceptWeight = 2

// =============================================================================
// FEATURE-HASHING EMBEDDING ENGINE
// =============================================================================

// HashEngine produces deterministic bag-of-words embeddings by hashing
// normalized tokens into a fixed number of buckets. It runs fully offline,
// so it is the default for workspaces without an embedding service.
// Identical text always yields an identical vector.
//
// With a concept lexicon, every token that names a concept also adds weight
// to that concept's bucket, so "login fails" and "invalid login rejected"
// meet on authentication and validation even with few shared words.
type HashEngine struct {
	dims     int
	concepts map[string][]string // stemmed token -> concept names
	name     string
}

// NewHashEngine creates a hash engine without concepts. Non-positive dims use
// the default.
func NewHashEngine(dims int) *HashEngine {
	return NewConceptHashEngine(dims, nil)
}

// NewConceptHashEngine creates a hash engine that expands tokens through a
// concept lexicon (concept name -> words that mention it). Only words that
// tokenize to a single token take part; the concept name counts as a word.
func NewConceptHashEngine(dims int, lexicon map[string][]string) *HashEngine {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	e := &HashEngine{dims: dims, name: fmt.Sprintf("hash:%d", dims)}
	if len(lexicon) == 0 {
		return e
	}

	e.concepts = make(map[string][]string)
	names := make([]string, 0, len(lexicon))
	for name := range lexicon {
		names = append(names, name)
	}
	sort.Strings(names)

	fp := fnv.New32a()
	for _, name := range names {
		concept := strings.ToLower(strings.TrimSpace(name))
		if concept == "" {
			continue
		}
		for _, word := range append([]string{name}, lexicon[name]...) {
			toks := Tokenize(word)
			if len(toks) != 1 || containsString(e.concepts[toks[0]], concept) {
				continue
			}
			e.concepts[toks[0]] = append(e.concepts[toks[0]], concept)
			fmt.Fprintf(fp, "%s=%s;", toks[0], concept)
		}
	}
	if len(e.concepts) > 0 {
		// Lexicon changes alter vectors, so they change the engine name too
		// and stored rows show up as stale.
		e.name = fmt.Sprintf("hash:%d+c%08x", dims, fp.Sum32())
	}
	return e
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func bucket(key string, dims int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(dims))
}

// Embed generates an L2-normalized embedding for a single text.
func (e *HashEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dims)
	for _, tok := range Tokenize(text) {
		vec[bucket(tok, e.dims)]++
		// "~" never appears in a token, so concept keys stay apart from words.
		for _, concept := range e.concepts[tok] {
			vec[bucket("~"+concept, e.dims)] += conceptWeight
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *HashEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *HashEngine) Name() string {
	return e.name
}

// =============================================================================
// TOKENIZATION
// =============================================================================

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "should": {}, "that": {},
	"the": {}, "this": {}, "to": {}, "was": {}, "were": {}, "when": {},
	"will": {}, "with": {},
}

// Tokenize lower-cases text, splits it on non-alphanumeric runes, drops stop
// words and strips common English suffixes.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, stem(f))
	}
	return out
}

// stem strips a few inflectional suffixes so "attempts"/"attempt" and
// "rejected"/"reject" share a token.
func stem(w string) string {
	if len(w) <= 4 {
		return w
	}
	for _, suffix := range []string{"ing", "ed", "es", "s"} {
		if strings.HasSuffix(w, suffix) && len(w)-len(suffix) >= 3 {
			if suffix == "s" && strings.HasSuffix(w, "ss") {
				return w
			}
			return strings.TrimSuffix(w, suffix)
		}
	}
	return w
}
