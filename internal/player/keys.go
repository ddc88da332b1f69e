package player

import "strings"

// HandleKey dispatches a single-key shortcut and reports whether the key
// is bound. Names follow DOM KeyboardEvent.key ("ArrowLeft", " ", "k").
func (c *Controller) HandleKey(key string) bool {
	switch normalizeKey(key) {
	case " ", "space", "k":
		c.TogglePlay()
	case "f":
		c.ToggleFullscreen()
	case "m":
		c.ToggleMute()
	case "arrowleft", "left", "j":
		c.Skip(-c.opts.SkipSeconds)
	case "arrowright", "right", "l":
		c.Skip(c.opts.SkipSeconds)
	default:
		return false
	}
	return true
}

func normalizeKey(key string) string {
	if key == " " {
		return key
	}
	return strings.ToLower(strings.TrimSpace(key))
}
