package process

import (
	"sort"
	"strconv"
	"strings"
)

// SignalTable maps platform signal names to their codes
type SignalTable map[string]int

// Lookup returns the code for a signal name. Names are matched case
// insensitively, with or without the SIG prefix.
func (t SignalTable) Lookup(name string) (int, bool) {
	if code, ok := t[name]; ok {
		return code, true
	}
	upper := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(upper, "SIG") {
		upper = "SIG" + upper
	}
	code, ok := t[upper]
	return code, ok
}

// Contains reports whether code is one of the table's values
func (t SignalTable) Contains(code int) bool {
	for _, c := range t {
		if c == code {
			return true
		}
	}
	return false
}

// Name returns a name registered for code
func (t SignalTable) Name(code int) (string, bool) {
	for _, name := range t.Names() {
		if t[name] == code {
			return name, true
		}
	}
	return "", false
}

// Names returns the signal names ordered by code, then name
func (t SignalTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if t[names[i]] != t[names[j]] {
			return t[names[i]] < t[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// ParseSignal resolves a signal given as a name or a decimal code against
// the table. Anything the table does not recognize is ErrUnknownSignal.
func ParseSignal(t SignalTable, s string) (int, error) {
	if code, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		if !t.Contains(code) {
			return 0, ErrUnknownSignal
		}
		return code, nil
	}
	code, ok := t.Lookup(s)
	if !ok {
		return 0, ErrUnknownSignal
	}
	return code, nil
}
