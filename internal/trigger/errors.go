package trigger

import "errors"

var (
	// ErrMalformedBlob reports a blob that is not a JSON object, lacks the kind
	// tag, or lacks a field its kind requires.
	ErrMalformedBlob = errors.New("malformed trigger blob")
	// ErrUnknownKind reports a kind tag with no registration.
	ErrUnknownKind = errors.New("unknown trigger kind")
	// ErrInvalidTimeFormat reports a stored date, time or cron field that does not parse.
	ErrInvalidTimeFormat = errors.New("invalid time format")
)
