package controller

import "fmt"

// EventType is the kind of an input event.
type EventType uint8

// Event types.
const (
	KeyDown EventType = iota + 1
	KeyUp
	MouseMove
	MouseDown
	MouseUp
)

// Key is a keyboard key the controller reacts to.
type Key uint8

// Keys.
const (
	KeyNone Key = iota
	KeyEscape
	KeySpace
	KeyR // reload assets
	KeyC // clear paint
	KeyP // save composite
	KeyX // toggle erase
	KeyN // new layer
)

// Button is a mouse button.
type Button uint8

// Buttons.
const (
	ButtonLeft Button = iota + 1
	ButtonMiddle
	ButtonRight
)

// Event is one input event. X and Y are the pointer position in window
// pixels.
type Event struct {
	Type   EventType
	Key    Key
	Button Button
	X, Y   float32
}

// Action is a set of requests an event makes of the application.
type Action uint8

// Actions.
const (
	ActionQuit Action = 1 << iota
	ActionReload
	ActionClearPaint
	ActionSave
	ActionToggleErase
	ActionNewLayer
)

var actionNames = []string{"quit", "reload", "clear-paint", "save", "toggle-erase", "new-layer"}

// Has reports whether a contains every action of b.
func (a Action) Has(b Action) bool { return a&b == b && b != 0 }

func (a Action) String() string {
	if a == 0 {
		return "none"
	}
	s := ""
	for i, name := range actionNames {
		if a&(1<<i) == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += name
	}
	if rest := a >> len(actionNames); rest != 0 {
		s += fmt.Sprintf("|Action(%#x)", uint8(a))
	}
	return s
}

var keyActions = map[Key]Action{
	KeyEscape: ActionQuit,
	KeyR:      ActionReload,
	KeyC:      ActionClearPaint,
	KeyP:      ActionSave,
	KeyX:      ActionToggleErase,
	KeyN:      ActionNewLayer,
}
