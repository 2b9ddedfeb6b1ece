package invoicing

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// NumberGenerator issues invoice numbers
type NumberGenerator interface {
	Next() string
}

// TimestampNumberGenerator derives numbers from a nanosecond clock in base 36.
// Numbers from one generator are strictly increasing even when the clock
// stalls or steps backwards.
type TimestampNumberGenerator struct {
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	last int64
}

// NewTimestampNumberGenerator creates a generator; prefix defaults to "INV"
func NewTimestampNumberGenerator(prefix string) *TimestampNumberGenerator {
	if prefix == "" {
		prefix = "INV"
	}
	return &TimestampNumberGenerator{prefix: prefix, now: time.Now}
}

// Next returns the next invoice number
func (g *TimestampNumberGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.now().UnixNano()
	if n <= g.last {
		n = g.last + 1
	}
	g.last = n
	return g.prefix + "-" + strings.ToUpper(strconv.FormatInt(n, 36))
}
