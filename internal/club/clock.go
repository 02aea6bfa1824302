package club

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the format of Run.Date.
const DateLayout = "2006-01-02"

// Clock supplies run timestamps and leaderboard window bounds.
type Clock interface {
	Now() time.Time
}

// Today is the clock's current date in DateLayout.
func Today(c Clock) string {
	return c.Now().Format(DateLayout)
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator issues remote document ids and runner name suffixes.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs. model.ShortID takes their last four
// characters for generated names.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
