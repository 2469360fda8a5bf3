package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet       QueryType = iota // Retrieve an entry by key.
	QueryTHas                        // Check if a live entry exists.
	QueryTMGet                       // Retrieve many entries at once.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTHas:
		return "Has"
	case QueryTMGet:
		return "MGet"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or ReadStale
type Query struct {
	Type QueryType // The type of Query to perform.
	Key  string    // The key for single key queries.
	Keys []string  // The keys for QueryTMGet.
}

// QueryResult is the result of a QueryTGet operation.
// QueryTMGet returns [][]byte, the other queries return primitive types or predefined structs (bool, db.DatabaseInfo).
type QueryResult struct {
	Ok    bool
	Value []byte
}
