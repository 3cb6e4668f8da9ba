package clock

import "time"

// Clock supplies the current time to the application. The engine's date
// and deadline gates depend on it; tests inject a frozen implementation.
type Clock interface {
	Now() time.Time
}
