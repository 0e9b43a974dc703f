// Package ingest turns raw document text into language-aware chunks
// ready for embedding and indexing.
package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// Chunk is one indexable piece of a document. Field names match the
// pipeline's JSONL wire format.
type Chunk struct {
	DocID       string `json:"docId"`
	ChunkID     string `json:"chunkId"`
	SourceURI   string `json:"sourceUri"`
	Text        string `json:"text"`
	Language    string `json:"language"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
}

// DocumentID derives the stable document ID from its storage location.
func DocumentID(bucket, name string) string {
	sum := md5.Sum([]byte(bucket + "/" + name))
	return hex.EncodeToString(sum[:])
}

// ChunkDocument detects the document's language, splits the text with
// language-adaptive sizing, and assigns stable IDs.
func ChunkDocument(bucket, name, text string) []Chunk {
	language := DetectLanguage(text)
	pieces := NewSplitter(language).Split(text)

	docID := DocumentID(bucket, name)
	sourceURI := fmt.Sprintf("s3://%s/%s", bucket, name)

	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = Chunk{
			DocID:       docID,
			ChunkID:     fmt.Sprintf("%s_%d", docID, i),
			SourceURI:   sourceURI,
			Text:        piece,
			Language:    language,
			ChunkIndex:  i,
			TotalChunks: len(pieces),
		}
	}
	return chunks
}

// WriteJSONL writes chunks as one JSON object per line.
func WriteJSONL(w io.Writer, chunks []Chunk) error {
	enc := json.NewEncoder(w)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("ingest: encoding chunk %s: %w", c.ChunkID, err)
		}
	}
	return nil
}

// ReadJSONL reads chunks written by WriteJSONL.
func ReadJSONL(r io.Reader) ([]Chunk, error) {
	var chunks []Chunk
	dec := json.NewDecoder(r)
	for {
		var c Chunk
		if err := dec.Decode(&c); err == io.EOF {
			return chunks, nil
		} else if err != nil {
			return nil, fmt.Errorf("ingest: decoding chunk line %d: %w", len(chunks), err)
		}
		chunks = append(chunks, c)
	}
}
