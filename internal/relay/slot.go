package relay

// Slot is the color that identifies a player inside a room.
type Slot string

const (
	SlotRed    Slot = "red"
	SlotBlue   Slot = "blue"
	SlotYellow Slot = "yellow"
	SlotGreen  Slot = "green"
)

// Palette lists the slots in the order they are handed out. Its length is
// the room capacity.
var Palette = []Slot{SlotRed, SlotBlue, SlotYellow, SlotGreen}

// assignSlot returns the first palette slot not in taken, or false when
// every slot is in use.
func assignSlot(palette []Slot, taken []Slot) (Slot, bool) {
	for _, s := range palette {
		if !containsSlot(taken, s) {
			return s, true
		}
	}
	return "", false
}

func containsSlot(slots []Slot, s Slot) bool {
	for _, v := range slots {
		if v == s {
			return true
		}
	}
	return false
}
