package embed

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/haowjy/ragstream-go/blobstore"
)

// BlobSink stages embedded vector batches in a blob store as JSONL
// objects, to be upserted into the index by a separate worker.
type BlobSink struct {
	store  blobstore.Store
	prefix string
	now    func() time.Time
}

// NewBlobSink creates a sink writing batch objects under prefix.
func NewBlobSink(store blobstore.Store, prefix string) *BlobSink {
	return &BlobSink{store: store, prefix: prefix, now: time.Now}
}

// WriteBatch writes one batch as a batch_{timestamp}.jsonl object.
func (s *BlobSink) WriteBatch(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := WriteJSONL(&buf, vectors); err != nil {
		return err
	}

	now := s.now().UTC()
	key := fmt.Sprintf("%sbatch_%s_%06d.jsonl",
		s.prefix, now.Format("20060102_150405"), now.Nanosecond()/1000)
	if err := s.store.Put(ctx, key, &buf); err != nil {
		return fmt.Errorf("embed: staging batch %s: %w", key, err)
	}
	return nil
}
