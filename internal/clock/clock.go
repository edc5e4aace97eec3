package clock

import "time"

// Clock abstracts wall-clock reads so schedule fire-time logic is testable.
type Clock interface {
	Now() time.Time
}
