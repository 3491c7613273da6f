package bridge

// Side names one of the two bridged platforms. Source and destination
// are dynamic per forward action, not fixed per side.
type Side string

const (
	SideTelegram Side = "telegram"
	SideDiscord  Side = "discord"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideTelegram {
		return SideDiscord
	}
	return SideTelegram
}

// Valid reports whether s names a known side.
func (s Side) Valid() bool {
	return s == SideTelegram || s == SideDiscord
}
