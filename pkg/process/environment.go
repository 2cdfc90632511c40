package process

import (
	"sort"
	"strings"
)

// Environment maps variable names to values
type Environment map[string]string

// EnvironmentFromStrings parses KEY=VALUE entries as returned by os.Environ.
// Entries without '=' are ignored; on duplicates the last one wins.
func EnvironmentFromStrings(entries []string) Environment {
	env := make(Environment, len(entries))
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		// Windows keeps per-drive entries such as "=C:=C:\\" whose name starts with '='
		i := strings.IndexByte(entry[1:], '=')
		if i < 0 {
			continue
		}
		i++
		env[entry[:i]] = entry[i+1:]
	}
	return env
}

// Clone returns an independent copy
func (e Environment) Clone() Environment {
	out := make(Environment, len(e))
	for _, k := range e.Keys() {
		out[k] = e[k]
	}
	return out
}

// Get returns the value for key
func (e Environment) Get(key string) (string, bool) {
	v, ok := e[key]
	return v, ok
}

// Set assigns value to key
func (e Environment) Set(key, value string) {
	e[key] = value
}

// Unset removes key
func (e Environment) Unset(key string) {
	delete(e, key)
}

// Len returns the number of variables
func (e Environment) Len() int {
	return len(e)
}

// Keys returns the variable names in sorted order
func (e Environment) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Strings renders the environment as sorted KEY=VALUE entries
func (e Environment) Strings() []string {
	out := make([]string, 0, len(e))
	for _, k := range e.Keys() {
		out = append(out, k+"="+e[k])
	}
	return out
}

// Equal reports whether both environments hold the same variables
func (e Environment) Equal(other Environment) bool {
	if len(e) != len(other) {
		return false
	}
	for k, v := range e {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
