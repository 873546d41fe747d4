package panel

// Gate is the latch that permits or blocks user interaction. It starts
// disabled. The gate is advisory: it is reported to presentation clients
// and consulted by nobody before an activation is published.
type Gate struct {
	enabled bool
}

// Enable permits interaction.
func (g *Gate) Enable() { g.enabled = true }

// Disable blocks interaction.
func (g *Gate) Disable() { g.enabled = false }

// IsDisabled reports whether interaction is currently blocked.
func (g *Gate) IsDisabled() bool { return !g.enabled }
