package control

import "fmt"

// Intent is one discrete input event delivered to the game.
type Intent int

const (
	MoveLeft Intent = iota + 1
	MoveRight
	Rotate
	SoftDropOn
	SoftDropOff
	// Held directions repeat until released.
	HoldLeft
	ReleaseLeft
	HoldRight
	ReleaseRight
)

var intentNames = map[Intent]string{
	MoveLeft:     "move_left",
	MoveRight:    "move_right",
	Rotate:       "rotate",
	SoftDropOn:   "soft_drop_on",
	SoftDropOff:  "soft_drop_off",
	HoldLeft:     "hold_left",
	ReleaseLeft:  "release_left",
	HoldRight:    "hold_right",
	ReleaseRight: "release_right",
}

func (i Intent) String() string {
	if name, ok := intentNames[i]; ok {
		return name
	}
	return fmt.Sprintf("Intent(%d)", int(i))
}

// Key names as browsers report them.
const (
	KeyLeft  = "ArrowLeft"
	KeyRight = "ArrowRight"
	KeyUp    = "ArrowUp"
	KeyDown  = "ArrowDown"
)

// KeyIntent maps a key transition to an intent. Auto-repeated key downs and
// unmapped keys yield false.
func KeyIntent(key string, down, repeat bool) (Intent, bool) {
	if repeat {
		return 0, false
	}
	switch key {
	case KeyLeft:
		if down {
			return HoldLeft, true
		}
		return ReleaseLeft, true
	case KeyRight:
		if down {
			return HoldRight, true
		}
		return ReleaseRight, true
	case KeyUp:
		if down {
			return Rotate, true
		}
	case KeyDown:
		if down {
			return SoftDropOn, true
		}
		return SoftDropOff, true
	}
	return 0, false
}

type Direction int

const (
	SwipeLeft Direction = iota + 1
	SwipeRight
	SwipeUp
	SwipeDown
)

// SwipeIntent maps a swipe gesture. Swiping down speeds the piece up until the
// next commit resets gravity.
func SwipeIntent(d Direction) (Intent, bool) {
	switch d {
	case SwipeLeft:
		return MoveLeft, true
	case SwipeRight:
		return MoveRight, true
	case SwipeUp:
		return Rotate, true
	case SwipeDown:
		return SoftDropOn, true
	}
	return 0, false
}
