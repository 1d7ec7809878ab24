package index

// Catalog defines the rule catalog operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type Catalog interface {
	UpsertRule(r RuleRow, body string) error
	DeleteRule(name string) error
	GetChecksum(name string) (string, error)
	AllChecksums() (map[string]string, error)
	ListRules(tag string) ([]RuleRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
