package errors

// Kind is the error classification.
type Kind uint8

const (
	// Other is a fallback classification of the error.
	Other Kind = iota
	// Invalid entity or argument.
	Invalid
	// Exist item already exists.
	Exist
	// NotFound item, file or remote result is missing.
	NotFound
	// MinLength at least one element is required.
	MinLength
	// Failure to apply an operation.
	Failure
	// Panic recovered from a callback.
	Panic
	// Discarded data was rejected by request validation, it is never delivered.
	Discarded
	// Timeout interval elapsed before any valid data arrived.
	Timeout
	// Cancelled request was removed before producing a terminal result.
	Cancelled
	// AuthorizationNeeded the producer requires an authorization that was not granted.
	AuthorizationNeeded
	// Internal failure reported by a producer or service.
	Internal
	// Parsing of a producer response or file failed.
	Parsing
	// InvalidAPIKey was rejected by a remote service.
	InvalidAPIKey
	// UsageLimitReached on a remote service quota.
	UsageLimitReached
)

var kindMessages = [...]string{
	Other:               "unknown error kind",
	Invalid:             "invalid argument",
	Exist:               "item already exists",
	NotFound:            "item not found",
	MinLength:           "at least one element is required",
	Failure:             "could not perform operation",
	Panic:               "panic",
	Discarded:           "data discarded",
	Timeout:             "timeout",
	Cancelled:           "cancelled",
	AuthorizationNeeded: "authorization needed",
	Internal:            "internal error",
	Parsing:             "parsing error",
	InvalidAPIKey:       "invalid or missing api key",
	UsageLimitReached:   "usage limit reached",
}

func (k Kind) String() string {
	if int(k) < len(kindMessages) {
		return kindMessages[k]
	}

	return kindMessages[Other]
}
