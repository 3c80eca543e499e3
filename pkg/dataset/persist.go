package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persist selects which part of the history is mirrored to the store.
type Persist struct {
	enabled bool
	// n > 0 keeps the first n entries, n < 0 the last -n, 0 all of them.
	n int
}

var (
	// PersistOff disables the mirror.
	PersistOff = Persist{}

	// PersistAll mirrors every entry.
	PersistAll = Persist{enabled: true}
)

// PersistSlice mirrors the first n entries when n > 0 and the last -n when
// n < 0. Zero mirrors every entry.
func PersistSlice(n int) Persist {
	return Persist{enabled: true, n: n}
}

// Enabled reports whether the mirror is on.
func (p Persist) Enabled() bool { return p.enabled }

// String renders the policy in the form accepted by ParsePersist.
func (p Persist) String() string {
	switch {
	case !p.enabled:
		return "off"
	case p.n == 0:
		return "all"
	default:
		return strconv.Itoa(p.n)
	}
}

// apply returns the entries to mirror.
func (p Persist) apply(entries []*Entry) []*Entry {
	switch {
	case !p.enabled:
		return nil
	case p.n > 0 && p.n < len(entries):
		return entries[:p.n]
	case p.n < 0 && -p.n < len(entries):
		return entries[len(entries)+p.n:]
	default:
		return entries
	}
}

// ParsePersist reads "off", "all" or a signed entry count.
func ParsePersist(s string) (Persist, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "false", "no":
		return PersistOff, nil
	case "all", "true", "yes":
		return PersistAll, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return PersistOff, fmt.Errorf("invalid persist policy %q: want off, all or a signed count", s)
	}
	return PersistSlice(n), nil
}

// UnmarshalYAML accepts the same forms as ParsePersist.
func (p *Persist) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParsePersist(node.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
