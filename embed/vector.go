package embed

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/haowjy/ragstream-go/ingest"
)

// Vector is an embedded chunk ready for upsert into the index. Field
// names match the pipeline's JSONL wire format.
type Vector struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata"`
}

// Metadata carries the chunk attributes needed to reconstruct search
// results without re-reading the source document.
type Metadata struct {
	DocID      string `json:"docId"`
	SourceURI  string `json:"sourceUri"`
	Text       string `json:"text"`
	Language   string `json:"language"`
	ChunkIndex int    `json:"chunkIndex"`
}

// NewVector pairs a chunk with its embedding.
func NewVector(c ingest.Chunk, embedding []float32) Vector {
	return Vector{
		ID:        c.ChunkID,
		Embedding: embedding,
		Metadata: Metadata{
			DocID:      c.DocID,
			SourceURI:  c.SourceURI,
			Text:       c.Text,
			Language:   c.Language,
			ChunkIndex: c.ChunkIndex,
		},
	}
}

// WriteJSONL writes vectors as one JSON object per line.
func WriteJSONL(w io.Writer, vectors []Vector) error {
	enc := json.NewEncoder(w)
	for _, v := range vectors {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("embed: encoding vector %s: %w", v.ID, err)
		}
	}
	return nil
}

// ReadJSONL reads vectors written by WriteJSONL.
func ReadJSONL(r io.Reader) ([]Vector, error) {
	var vectors []Vector
	dec := json.NewDecoder(r)
	for {
		var v Vector
		if err := dec.Decode(&v); err == io.EOF {
			return vectors, nil
		} else if err != nil {
			return nil, fmt.Errorf("embed: decoding vector line %d: %w", len(vectors), err)
		}
		vectors = append(vectors, v)
	}
}
