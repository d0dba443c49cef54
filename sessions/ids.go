package sessions

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator produces lexically sortable ULIDs. Ids are monotonic within a
// millisecond and never go backwards when the clock does.
type IDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	lastMs  uint64
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *IDGenerator) New(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := max(ulid.Timestamp(now), g.lastMs)
	id, err := ulid.New(ms, g.entropy)
	if err != nil {
		// monotonic entropy exhausted for this millisecond
		ms++
		id = ulid.MustNew(ms, g.entropy)
	}
	g.lastMs = ms
	return id.String()
}
