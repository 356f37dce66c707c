package types

// Row is a flattened result row keyed by column name.
type Row map[string]any

// RowList is the row collection of a ResultSet.
type RowList struct {
	rows    []Row
	columns []string
}

// Len returns the number of rows.
func (l RowList) Len() int {
	return len(l.rows)
}

// Item returns the row at index, or nil when index is out of range.
func (l RowList) Item(index int) Row {
	if index < 0 || index >= len(l.rows) {
		return nil
	}
	return l.rows[index]
}

// Columns returns the column names in the order of the first row.
func (l RowList) Columns() []string {
	return l.columns
}

// All returns the rows as a slice. The slice is shared, not copied.
func (l RowList) All() []Row {
	return l.rows
}

// ResultSet is what a successful statement hands to its success callback.
type ResultSet struct {
	Rows         RowList
	RowsAffected int64
	InsertID     int64
}

// NewResultSet flattens the key/value pairs of a native result into plain
// rows. A nil result yields an empty ResultSet. When a row repeats a column
// name the last value wins.
func NewResultSet(res *NativeResult) *ResultSet {
	rs := &ResultSet{}
	if res == nil {
		return rs
	}
	rs.RowsAffected = res.RowsAffected
	rs.InsertID = res.InsertID

	rows := make([]Row, 0, len(res.Rows))
	for i, native := range res.Rows {
		row := make(Row, len(native))
		for _, col := range native {
			row[col.Key] = col.Value
		}
		if i == 0 {
			rs.Rows.columns = make([]string, 0, len(native))
			for _, col := range native {
				rs.Rows.columns = append(rs.Rows.columns, col.Key)
			}
		}
		rows = append(rows, row)
	}
	rs.Rows.rows = rows
	return rs
}
