package models

// Row is one input record. Key is the row's position in the input table and
// must be unique within a run.
type Row struct {
	Key       int      // Key is the stable identity of the row in the input table.
	Primary   string   // Primary street name, empty when missing.
	Secondary string   // Secondary (cross) street name, empty when missing.
	Fields    []string // Fields holds the untouched input record.
}
