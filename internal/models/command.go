package models

import "strings"

// Verb identifies a command. The set is closed; anything else parses as Unrecognised.
type Verb int

const (
	Unrecognised Verb = iota
	Capability
	Noop
	Login
	List
	Lsub
	Select
	Status
	Fetch
	UID
	Create
	Subscribe
	Logout
	Authenticate
	StartTLS
)

var verbNames = map[Verb]string{
	Unrecognised: "UNRECOGNISED",
	Capability:   "CAPABILITY",
	Noop:         "NOOP",
	Login:        "LOGIN",
	List:         "LIST",
	Lsub:         "LSUB",
	Select:       "SELECT",
	Status:       "STATUS",
	Fetch:        "FETCH",
	UID:          "UID",
	Create:       "CREATE",
	Subscribe:    "SUBSCRIBE",
	Logout:       "LOGOUT",
	Authenticate: "AUTHENTICATE",
	StartTLS:     "STARTTLS",
}

var verbsByName = func() map[string]Verb {
	m := make(map[string]Verb, len(verbNames))
	for v, name := range verbNames {
		if v != Unrecognised {
			m[name] = v
		}
	}
	return m
}()

func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return verbNames[Unrecognised]
}

// LookupVerb resolves a command name case-insensitively
func LookupVerb(name string) Verb {
	if v, ok := verbsByName[strings.ToUpper(name)]; ok {
		return v
	}
	return Unrecognised
}

// Command is one parsed request line
type Command struct {
	Tag  string
	Verb Verb
	Name string // verb as sent by the client
	Args string // everything after the verb, unparsed
}

// ParseCommand splits a request line into tag, verb and arguments. The line
// is split on the first two single spaces; a missing tag becomes "*".
func ParseCommand(line string) *Command {
	line = strings.TrimRight(line, "\r\n")

	parts := strings.SplitN(line, " ", 3)
	cmd := &Command{Tag: parts[0]}
	if cmd.Tag == "" {
		cmd.Tag = "*"
	}
	if len(parts) > 1 {
		cmd.Name = parts[1]
		cmd.Verb = LookupVerb(parts[1])
	}
	if len(parts) > 2 {
		cmd.Args = parts[2]
	}
	return cmd
}

// Fields splits the arguments on whitespace, keeping double-quoted strings
// together and stripping their quotes. Backslash escapes a quote or backslash
// inside a quoted string.
func (c *Command) Fields() []string {
	var (
		fields  []string
		cur     strings.Builder
		inQuote bool
		escaped bool
		started bool
	)

	for _, r := range c.Args {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (r == ' ' || r == '\t'):
			if started {
				fields = append(fields, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		fields = append(fields, cur.String())
	}
	return fields
}
