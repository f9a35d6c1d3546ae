package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/BurntSushi/toml"
)

// maxSuggestDistance is the largest edit distance still offered as a
// "did you mean?" suggestion.
const maxSuggestDistance = 3

// schema lists the valid keys per table, read from the toml tags on Config.
// Top-level keys sit under "" and include the table names.
var schema = tableKeys(reflect.TypeFor[Config]())

func tableKeys(root reflect.Type) map[string][]string {
	tables := map[string][]string{}

	var walk func(t reflect.Type, table string)
	walk = func(t reflect.Type, table string) {
		for i := range t.NumField() {
			f := t.Field(i)
			name := f.Tag.Get("toml")

			switch {
			case f.Anonymous && name == "":
				walk(f.Type, table)
			case name == "" || name == "-":
				// not decoded from the file
			case f.Type.Kind() == reflect.Struct && table == "":
				tables[""] = append(tables[""], name)
				walk(f.Type, name)
			default:
				tables[table] = append(tables[table], name)
			}
		}
	}

	walk(root, "")

	for _, keys := range tables {
		slices.Sort(keys)
	}

	return tables
}

// checkUnknownKeys turns the keys toml could not decode into errors, each with
// the closest valid key when one is near enough.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()

	var errs []error

	for _, key := range undecoded {
		switch {
		case len(key) == 0:
		case len(key) == 1:
			errs = append(errs, unknownKeyError("", key[0]))
		case schema[key[0]] != nil:
			errs = append(errs, unknownKeyError(key[0], key[1]))
		case !slices.ContainsFunc(undecoded, func(k toml.Key) bool { return len(k) == 1 && k[0] == key[0] }):
			// A key inside an unknown table whose header toml did not
			// report on its own, as with dotted keys.
			errs = append(errs, unknownKeyError("", key[0]))
		}
	}

	return errors.Join(errs...)
}

func unknownKeyError(table, key string) error {
	where := ""
	if table != "" {
		where = fmt.Sprintf(" in [%s]", table)
	}

	if s := closestMatch(key, schema[table]); s != "" {
		return fmt.Errorf("unknown config key %q%s; did you mean %q?", key, where, s)
	}

	return fmt.Errorf("unknown config key %q%s", key, where)
}

// closestMatch returns the first of known within maxSuggestDistance edits of
// key, preferring the smallest distance, or "".
func closestMatch(key string, known []string) string {
	best, bestDist := "", maxSuggestDistance+1

	for _, k := range known {
		if d := levenshtein(key, k); d < bestDist {
			best, bestDist = k, d
		}
	}

	return best
}

// levenshtein is the byte-wise edit distance between a and b, kept in two
// rows.
func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			sub := prev[j]
			if a[i] != b[j] {
				sub++
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, sub)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
