package reporting

// Column describes one configured column of a data source, as reported by
// the live column registry.
type Column struct {
	Name       string
	Filterable bool
}

// DataSource is one registered analytics data source. TableName comes from
// the trusted catalog, never from a caller, which is why it may be placed
// into SQL while caller-supplied identifiers may not.
type DataSource struct {
	ID        int
	TableName string
}
