package repository

// Window is a leaderboard ranking horizon.
type Window string

const (
	Window1d  Window = "1d"
	Window5d  Window = "5d"
	Window20d Window = "20d"
)

// IsValidWindow returns true if w is a supported window.
func IsValidWindow(w Window) bool {
	switch w {
	case Window1d, Window5d, Window20d:
		return true
	default:
		return false
	}
}

// DefaultWindow returns the default window.
func DefaultWindow() Window { return Window5d }

// NormalizeWindow converts raw string to a valid window (or default).
func NormalizeWindow(s string) Window {
	if s == "" {
		return DefaultWindow()
	}
	w := Window(s)
	if IsValidWindow(w) {
		return w
	}
	return DefaultWindow()
}
