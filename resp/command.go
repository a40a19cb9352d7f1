package resp

// Command is a command name plus its ordered argument byte-strings
// (spec.md §3). The name is the only part the router interprets;
// arguments are opaque to it except where the catalog's key-spec
// identifies them as keys.
type Command struct {
	Name string
	Args [][]byte
}

// NewCommand builds a Command from string arguments, a convenience for
// callers that don't already hold []byte slices.
func NewCommand(name string, args ...string) Command {
	a := make([][]byte, len(args))
	for i, s := range args {
		a[i] = []byte(s)
	}
	return Command{Name: name, Args: a}
}

// Append encodes the command in wire form and appends it to buf.
func (c Command) Append(buf []byte) []byte {
	return AppendCommand(buf, c.Name, c.Args)
}

func (c Command) String() string {
	s := c.Name
	for _, a := range c.Args {
		s += " " + string(a)
	}
	return s
}
