package process

import "strings"

// Arguments is an immutable ordered argument list. Index 0 is the program.
type Arguments struct {
	args []string
}

// NewArguments copies args into an argument list
func NewArguments(args ...string) Arguments {
	return Arguments{args: append([]string(nil), args...)}
}

// Len returns the number of arguments
func (a Arguments) Len() int {
	return len(a.args)
}

// At returns the argument at index i
func (a Arguments) At(i int) string {
	return a.args[i]
}

// Program returns the first argument, or "" for an empty list
func (a Arguments) Program() string {
	if len(a.args) == 0 {
		return ""
	}
	return a.args[0]
}

// Slice returns a copy of the arguments
func (a Arguments) Slice() []string {
	return append([]string(nil), a.args...)
}

// String renders every argument double quoted and space separated. It is
// meant for diagnostics, never for spawning.
func (a Arguments) String() string {
	var b strings.Builder
	for i, arg := range a.args {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('"')
		b.WriteString(arg)
		b.WriteByte('"')
	}
	return b.String()
}
