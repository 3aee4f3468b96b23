package game

import (
	"fmt"
	"time"
)

// TickSpeed selects the gravity interval.
type TickSpeed int

const (
	Stopped TickSpeed = iota
	Normal
	Sliding
	Fast
)

var speedNames = map[TickSpeed]string{
	Stopped: "stopped",
	Normal:  "normal",
	Sliding: "sliding",
	Fast:    "fast",
}

// Interval is the delay between two ticks. Stopped has none and returns 0.
func (s TickSpeed) Interval() time.Duration {
	switch s {
	case Normal:
		return 800 * time.Millisecond
	case Sliding:
		return 100 * time.Millisecond
	case Fast:
		return 50 * time.Millisecond
	}
	return 0
}

func (s TickSpeed) String() string {
	if name, ok := speedNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TickSpeed(%d)", int(s))
}

func (s TickSpeed) MarshalText() ([]byte, error) {
	name, ok := speedNames[s]
	if !ok {
		return nil, fmt.Errorf("game: invalid tick speed %d", int(s))
	}
	return []byte(name), nil
}

func (s *TickSpeed) UnmarshalText(text []byte) error {
	for speed, name := range speedNames {
		if name == string(text) {
			*s = speed
			return nil
		}
	}
	return fmt.Errorf("game: unknown tick speed %q", text)
}
