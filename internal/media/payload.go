package media

import (
	"context"
	"hash/fnv"

	"marketbot/internal/domain"
)

// Payload is a resolved attachment whose bytes are downloaded on first use.
// Stages that decline before needing the data never trigger a download, and
// later stages reuse the first download. A Payload belongs to one request
// and is not safe for concurrent use.
type Payload struct {
	URL string

	src    domain.FileSource
	data   []byte
	err    error
	loaded bool
}

func NewPayload(src domain.FileSource, url string) *Payload {
	return &Payload{URL: url, src: src}
}

// Bytes downloads the attachment once and caches the outcome.
func (p *Payload) Bytes(ctx context.Context) ([]byte, error) {
	if !p.loaded {
		p.data, p.err = p.src.Download(ctx, p.URL)
		p.loaded = true
	}
	return p.data, p.err
}

// DemoCount is the number of canned results each demo table holds.
const DemoCount = 10

// DemoIndex maps a file id onto a demo table slot. The same id always lands
// on the same slot.
func DemoIndex(fileID string) int {
	h := fnv.New32a()
	h.Write([]byte(fileID))
	return int(h.Sum32() % DemoCount)
}
