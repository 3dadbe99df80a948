package picture

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Id prefixes used by the registry.
const (
	PicturePrefix = "nb-picture-"
	MapPrefix     = "nb-picture-map-"
	AreaPrefix    = "nb-picture-map-area-"
)

// IDGenerator hands out ids that are unique for the life of the process.
type IDGenerator interface {
	NewID(prefix string) string
}

// CounterGenerator numbers ids from a single monotonic counter shared by
// all prefixes.
type CounterGenerator struct {
	n atomic.Uint64
}

// NewCounterGenerator creates a counter that starts at 1.
func NewCounterGenerator() *CounterGenerator {
	return &CounterGenerator{}
}

func (g *CounterGenerator) NewID(prefix string) string {
	return prefix + strconv.FormatUint(g.n.Add(1), 10)
}

// UUIDGenerator suffixes each prefix with a random UUID.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(prefix string) string {
	return prefix + uuid.New().String()
}

// NewIDGenerator returns the generator for a configured scheme name.
func NewIDGenerator(scheme string) IDGenerator {
	if scheme == "counter" {
		return NewCounterGenerator()
	}
	return UUIDGenerator{}
}
