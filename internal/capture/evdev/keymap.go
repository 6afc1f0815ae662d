//go:build linux

package evdev

// keyDef maps a Linux input keycode to a readable name and, for printable
// keys, the unshifted character. Shift state is not tracked; analysis treats
// characters case-insensitively.
type keyDef struct {
	name string
	char string
}

var keyMap = map[uint16]keyDef{
	1:   {name: "esc"},
	2:   {name: "1", char: "1"},
	3:   {name: "2", char: "2"},
	4:   {name: "3", char: "3"},
	5:   {name: "4", char: "4"},
	6:   {name: "5", char: "5"},
	7:   {name: "6", char: "6"},
	8:   {name: "7", char: "7"},
	9:   {name: "8", char: "8"},
	10:  {name: "9", char: "9"},
	11:  {name: "0", char: "0"},
	12:  {name: "minus", char: "-"},
	13:  {name: "equal", char: "="},
	14:  {name: "backspace"},
	15:  {name: "tab"},
	16:  {name: "q", char: "q"},
	17:  {name: "w", char: "w"},
	18:  {name: "e", char: "e"},
	19:  {name: "r", char: "r"},
	20:  {name: "t", char: "t"},
	21:  {name: "y", char: "y"},
	22:  {name: "u", char: "u"},
	23:  {name: "i", char: "i"},
	24:  {name: "o", char: "o"},
	25:  {name: "p", char: "p"},
	26:  {name: "leftbrace", char: "["},
	27:  {name: "rightbrace", char: "]"},
	28:  {name: "enter"},
	29:  {name: "ctrl"},
	30:  {name: "a", char: "a"},
	31:  {name: "s", char: "s"},
	32:  {name: "d", char: "d"},
	33:  {name: "f", char: "f"},
	34:  {name: "g", char: "g"},
	35:  {name: "h", char: "h"},
	36:  {name: "j", char: "j"},
	37:  {name: "k", char: "k"},
	38:  {name: "l", char: "l"},
	39:  {name: "semicolon", char: ";"},
	40:  {name: "apostrophe", char: "'"},
	41:  {name: "grave", char: "`"},
	42:  {name: "shift"},
	43:  {name: "backslash", char: "\\"},
	44:  {name: "z", char: "z"},
	45:  {name: "x", char: "x"},
	46:  {name: "c", char: "c"},
	47:  {name: "v", char: "v"},
	48:  {name: "b", char: "b"},
	49:  {name: "n", char: "n"},
	50:  {name: "m", char: "m"},
	51:  {name: "comma", char: ","},
	52:  {name: "dot", char: "."},
	53:  {name: "slash", char: "/"},
	54:  {name: "shift"},
	56:  {name: "alt"},
	57:  {name: "space", char: " "},
	58:  {name: "caps"},
	97:  {name: "ctrl"},
	100: {name: "alt"},
	102: {name: "home"},
	103: {name: "up"},
	104: {name: "pageup"},
	105: {name: "left"},
	106: {name: "right"},
	107: {name: "end"},
	108: {name: "down"},
	109: {name: "pagedown"},
	110: {name: "insert"},
	111: {name: "delete"},
	125: {name: "cmd"},
}

func lookupKey(code uint16) (name, char string) {
	if def, ok := keyMap[code]; ok {
		return def.name, def.char
	}
	return "", ""
}
