package event

import "strings"

// Finger identifies which finger a key is conventionally struck with on a
// QWERTY layout.
type Finger string

const (
	LeftPinky   Finger = "left_pinky"
	LeftRing    Finger = "left_ring"
	LeftMiddle  Finger = "left_middle"
	LeftIndex   Finger = "left_index"
	RightIndex  Finger = "right_index"
	RightMiddle Finger = "right_middle"
	RightRing   Finger = "right_ring"
	RightPinky  Finger = "right_pinky"
	Thumbs      Finger = "thumbs"
	FingerNone  Finger = "unknown"
)

// fingerMap is the static QWERTY key-to-finger assignment. Plain lookup data,
// not behavior.
var fingerMap = map[string]Finger{
	// Left hand
	"q": LeftPinky, "a": LeftPinky, "z": LeftPinky, "1": LeftPinky,
	"w": LeftRing, "s": LeftRing, "x": LeftRing, "2": LeftRing,
	"e": LeftMiddle, "d": LeftMiddle, "c": LeftMiddle, "3": LeftMiddle,
	"r": LeftIndex, "f": LeftIndex, "v": LeftIndex, "4": LeftIndex,
	"t": LeftIndex, "g": LeftIndex, "b": LeftIndex, "5": LeftIndex,

	// Right hand
	"y": RightIndex, "h": RightIndex, "n": RightIndex, "6": RightIndex,
	"u": RightIndex, "j": RightIndex, "m": RightIndex, "7": RightIndex,
	"i": RightMiddle, "k": RightMiddle, ",": RightMiddle, "8": RightMiddle,
	"o": RightRing, "l": RightRing, ".": RightRing, "9": RightRing,
	"p": RightPinky, ";": RightPinky, "/": RightPinky, "0": RightPinky,

	// Special keys
	" ":         Thumbs,
	"space":     Thumbs,
	"shift":     LeftPinky,
	"ctrl":      LeftPinky,
	"cmd":       Thumbs,
	"alt":       Thumbs,
	"tab":       LeftPinky,
	"caps":      LeftPinky,
	"return":    RightPinky,
	"enter":     RightPinky,
	"delete":    RightPinky,
	"backspace": RightPinky,
}

// FingerFor returns the finger assignment for a key character or key name.
func FingerFor(key string) Finger {
	if f, ok := fingerMap[strings.ToLower(key)]; ok {
		return f
	}
	return FingerNone
}

// Hand is the side of the keyboard a finger belongs to.
type Hand string

const (
	LeftHand  Hand = "left"
	RightHand Hand = "right"
	ThumbHand Hand = "thumbs"
	HandNone  Hand = "unknown"
)

// HandOf classifies a finger by hand.
func HandOf(f Finger) Hand {
	switch {
	case strings.HasPrefix(string(f), "left"):
		return LeftHand
	case strings.HasPrefix(string(f), "right"):
		return RightHand
	case f == Thumbs:
		return ThumbHand
	default:
		return HandNone
	}
}
