package sensor

// Names maps positional logical names ("A1") to domain-facing names ("TD01").
type Names map[string]string

// DefaultNames covers two buses of five probes.
func DefaultNames() Names {
	return Names{
		"A1": "TD01", "A2": "TD02", "A3": "TD03", "A4": "TD04", "A5": "TD05",
		"B1": "TD06", "B2": "TD07", "B3": "TD08", "B4": "TD09", "B5": "TD10",
	}
}

// Lookup returns the mapped name, or the logical name when unmapped.
func (n Names) Lookup(logical string) string {
	if name, ok := n[logical]; ok && name != "" {
		return name
	}
	return logical
}
