package catalog

// Params is the parameter mapping sent with an action call.
type Params map[string]any

// Record is a raw catalog record as returned by an action call.
//
// The catalog is schema-less: packages, organizations and users all come
// back as free-form JSON objects. Entities keep the Record they were loaded
// from as their cache and read it through the typed accessors below instead
// of poking at the map directly.
type Record map[string]any

// String returns the value under key as a string, or "" if the key is
// absent, null, or not a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int returns the value under key as an int. JSON numbers decode as
// float64, so both forms are accepted.
func (r Record) Int(key string) int {
	switch v := r[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// Object returns the nested object under key, or nil if the key is absent
// or holds something else.
func (r Record) Object(key string) Record {
	m, ok := r[key].(map[string]any)
	if !ok {
		return nil
	}
	return Record(m)
}

// Records returns the value under key as a list of Records.
// Returns nil if the key is absent or holds something else.
func (r Record) Records(key string) []Record {
	items, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

// StringList returns the value under key as a list of strings.
func (r Record) StringList(key string) []string {
	items, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// TagNames extracts the "name" of every entry in the record's tags list.
// Catalog packages store tags as [{"name": "Python"}, ...].
func (r Record) TagNames() []string {
	tags := r.Records("tags")
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.String("name"))
	}
	return names
}

// ExtraValue looks up the value of a key/value metadata pair in the
// record's extras list. The second return is false when the extras list is
// absent, empty, or does not contain the key.
func (r Record) ExtraValue(key string) (string, bool) {
	for _, extra := range r.Records("extras") {
		if extra.String("key") == key {
			return extra.String("value"), true
		}
	}
	return "", false
}

// TagList converts plain tag names into the [{"name": ...}] shape the
// catalog expects on writes.
func TagList(names []string) []Params {
	tags := make([]Params, 0, len(names))
	for _, name := range names {
		tags = append(tags, Params{"name": name})
	}
	return tags
}
