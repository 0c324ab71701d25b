package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const DefaultHashDimension = 512

// HashEmbedder is a network-free embedder that hashes word tokens into a
// fixed number of buckets and L2-normalises the counts. Texts sharing
// content words end up close under cosine distance.
type HashEmbedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &HashEmbedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+`),
		stopwords:    defaultStopwords(),
	}
}

func (h *HashEmbedder) Model() string { return fmt.Sprintf("hash-%d", h.dimension) }

func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vectors = append(vectors, h.embedOne(text))
	}
	return vectors, nil
}

func (h *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, h.dimension)
	for _, tok := range h.tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := h.stopwords[tok]; stop {
			continue
		}
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(tok))
		vec[hasher.Sum64()%uint64(h.dimension)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "for", "to", "of", "in", "on", "at", "by", "with",
		"as", "is", "are", "was", "were", "be", "been", "it", "this", "that", "from", "what", "which", "who",
		"how", "why", "when", "where", "do", "does", "did", "happened", "so", "into", "about",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
