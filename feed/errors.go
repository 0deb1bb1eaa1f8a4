package feed

// missingResumeTokenMsg explains a feed that can no longer resume because the
// resume token was filtered out of its documents.
const missingResumeTokenMsg = "cannot provide resume functionality when the resume token is missing; " +
	"if you need to change the shape of the change feed documents, use a raw aggregation instead"

// ConfigError reports feed configuration the server or this package cannot
// honor, such as options that fail to serialize or a pipeline that strips the
// resume token. It is never retried.
type ConfigError struct {
	Reason string
	Err    error
}

func (e ConfigError) Error() string {
	if e.Err != nil {
		return "change feed configuration: " + e.Reason + ": " + e.Err.Error()
	}
	return "change feed configuration: " + e.Reason
}

func (e ConfigError) Unwrap() error {
	return e.Err
}

// DecodeError reports a server payload this package could not decode. It is
// never retried.
type DecodeError struct {
	Err error
}

func (e DecodeError) Error() string {
	return "decoding change feed payload: " + e.Err.Error()
}

func (e DecodeError) Unwrap() error {
	return e.Err
}
