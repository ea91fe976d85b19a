package utils

import "strings"

// ParseQuotedString parses a quoted string argument, handling both quoted and unquoted strings
func ParseQuotedString(arg string) string {
	if len(arg) >= 2 && arg[0] == '"' && arg[len(arg)-1] == '"' {
		return arg[1 : len(arg)-1]
	}
	return arg
}

// LastArgument returns the final space separated token of args, unquoted.
// LIST and LSUB only look at their mailbox pattern.
func LastArgument(args string) string {
	args = strings.TrimSpace(args)
	if args == "" {
		return ""
	}
	if idx := strings.LastIndexByte(args, ' '); idx != -1 {
		args = args[idx+1:]
	}
	return ParseQuotedString(args)
}

// SplitFirst splits args into the first token and the rest
func SplitFirst(args string) (string, string) {
	args = strings.TrimSpace(args)
	first, rest, _ := strings.Cut(args, " ")
	return first, strings.TrimSpace(rest)
}
