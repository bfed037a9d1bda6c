// Package env reads option defaults from the environment.
package env

import (
	"os"
	"strconv"
)

// String returns the value of key, or def when key is unset.
func String(key, def string) string {
	return lookup(key, def, func(s string) (string, error) { return s, nil })
}

// Bool returns key parsed with strconv.ParseBool, or def when key is unset or
// does not parse.
func Bool(key string, def bool) bool {
	return lookup(key, def, strconv.ParseBool)
}

// Int returns key parsed as a base 10 int, or def when key is unset or does
// not parse.
func Int(key string, def int) int {
	return lookup(key, def, strconv.Atoi)
}

func lookup[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}
