package domain

// ErrorKind classifies gateway failures for callers.
type ErrorKind string

const (
	// ErrorKindRateLimited means the caller should wait and retry.
	ErrorKindRateLimited ErrorKind = "rate_limited"
	// ErrorKindCapacityExceeded means the session registry is full.
	ErrorKindCapacityExceeded ErrorKind = "capacity_exceeded"
	// ErrorKindInvalidRequest means the input is malformed.
	ErrorKindInvalidRequest ErrorKind = "invalid_request"
	// ErrorKindQueryRejected means the query guard refused the statement.
	ErrorKindQueryRejected ErrorKind = "query_rejected"
	// ErrorKindUpstreamFailure means the producer or executor failed.
	ErrorKindUpstreamFailure ErrorKind = "upstream_failure"
)
