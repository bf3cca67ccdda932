package http

import "strings"

// Query maps a key to every value it was given, in order of appearance.
type Query map[string][]string

// Get returns the first value of key.
func (q Query) Get(key string) (string, bool) {
	values, found := q[key]
	if !found || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// ParseQuery splits an application/x-www-form-urlencoded style string.
// '+' becomes a space; percent escapes are left untouched.
func ParseQuery(query string) Query {
	result := make(Query)
	if query == "" {
		return result
	}

	for _, part := range strings.Split(query, "&") {
		key, value, found := strings.Cut(part, "=")
		if found {
			key = strings.ReplaceAll(key, "+", " ")
			value = strings.ReplaceAll(value, "+", " ")
		}

		result[key] = append(result[key], value)
	}

	return result
}

type ResourceIdentifier struct {
	Path  string
	Query Query
}

func ParseResourceIdentifier(target string) ResourceIdentifier {
	path, query, found := strings.Cut(target, "?")

	ri := ResourceIdentifier{Path: path, Query: make(Query)}
	if found {
		ri.Query = ParseQuery(query)
	}

	return ri
}

// PathParts splits the path on '/'. The leading empty segment stands for the
// root, so "/" yields [""] and "/a/b" yields ["", "a", "b"].
func (ri ResourceIdentifier) PathParts() []string {
	return splitPath(ri.Path)
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
