package store

import (
	"encoding/json"
	"sort"
	"strings"

	"github/itish2003/tenantrag/models"
)

// storedChunk is a chunk as read back from a backend. Position is -1 when the
// chunk was written without one.
type storedChunk struct {
	Text     string
	Filename string
	Position int
}

// joinByFilename groups chunks by filename and concatenates each group with a
// single space. Chunks are ordered by source position; chunks without one keep
// their retrieval order after the positioned ones.
func joinByFilename(chunks []storedChunk) map[string]string {
	groups := make(map[string][]storedChunk)
	for _, c := range chunks {
		groups[c.Filename] = append(groups[c.Filename], c)
	}

	out := make(map[string]string, len(groups))
	for name, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			pi, pj := group[i].Position, group[j].Position
			if pi < 0 || pj < 0 {
				return pi >= 0 && pj < 0
			}
			return pi < pj
		})
		texts := make([]string, len(group))
		for i, c := range group {
			texts[i] = c.Text
		}
		out[name] = strings.Join(texts, " ")
	}
	return out
}

func positionPtr(p int) *int {
	if p < 0 {
		return nil
	}
	return models.IntPtr(p)
}

// metadataMap converts a backend metadata value into a plain map by going
// through JSON, which every metadata type in use supports.
func metadataMap(meta any) map[string]interface{} {
	m := make(map[string]interface{})
	if meta == nil {
		return m
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return m
	}
	_ = json.Unmarshal(raw, &m)
	return m
}

func chunkFromMetadata(text string, meta map[string]interface{}) storedChunk {
	c := storedChunk{Text: text, Position: -1}
	if name, ok := meta[metaFilename].(string); ok {
		c.Filename = name
	}
	switch pos := meta[metaPosition].(type) {
	case float64:
		c.Position = int(pos)
	case int64:
		c.Position = int(pos)
	case int:
		c.Position = pos
	}
	return c
}
