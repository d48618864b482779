package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coregx/relmap/internal/expr"
)

// parseArgs converts positional arguments into operation parameters.
// "null" is nil, integers and floats are numbers, true and false are
// booleans and anything else is a string. A leading "=" forces a string.
func parseArgs(args []string) []any {
	params := make([]any, len(args))
	for i, arg := range args {
		params[i] = parseArg(arg)
	}
	return params
}

func parseArg(s string) any {
	if rest, ok := strings.CutPrefix(s, "="); ok {
		return rest
	}
	switch s {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// parseEnv converts key=value pairs into the environment of default-value
// expressions.
func parseEnv(pairs []string) (expr.Env, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(expr.Env, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid env %q: expected key=value", pair)
		}
		env[key] = parseArg(value)
	}
	return env, nil
}
