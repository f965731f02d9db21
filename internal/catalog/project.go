package catalog

import "fmt"

// Select reshapes a list of records into a list containing only the given
// fields, preserving record order. A field missing from any record is a
// programmer error and is returned as a plain error rather than silently
// omitted; the inconsistent record shape should surface, not vanish.
func Select(records []Record, fields []string) ([]Record, error) {
	out := make([]Record, 0, len(records))
	for i, rec := range records {
		projected := make(Record, len(fields))
		for _, field := range fields {
			value, ok := rec[field]
			if !ok {
				return nil, fmt.Errorf("select: field %q missing from record %d", field, i)
			}
			projected[field] = value
		}
		out = append(out, projected)
	}
	return out, nil
}

// SelectAs is Select with renaming: fields maps each source field to the
// key it should have in the output. Projecting with {a: b} and then
// projecting the result with {b: a} recovers the original layout.
func SelectAs(records []Record, fields map[string]string) ([]Record, error) {
	out := make([]Record, 0, len(records))
	for i, rec := range records {
		projected := make(Record, len(fields))
		for src, dst := range fields {
			value, ok := rec[src]
			if !ok {
				return nil, fmt.Errorf("select: field %q missing from record %d", src, i)
			}
			projected[dst] = value
		}
		out = append(out, projected)
	}
	return out, nil
}
