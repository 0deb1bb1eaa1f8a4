package feed

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FullDocumentMode controls how update notifications carry document state.
// Values newer than this client pass through to the server untouched.
type FullDocumentMode string

const (
	// FullDocumentDefault includes only the delta of changes to a document.
	FullDocumentDefault FullDocumentMode = "default"

	// FullDocumentUpdateLookup additionally attaches a copy of the entire
	// changed document from some point in time after the change occurred.
	FullDocumentUpdateLookup FullDocumentMode = "updateLookup"
)

// Options configures a change feed at construction time. A nil or unset
// optional field is not sent to the server. A Feed copies its Options, so
// mutating them after construction has no effect.
//
// The server rejects a request carrying both StartAfter and ResumeAfter; the
// pipeline builder never emits both.
type Options struct {
	// FullDocument selects how partial updates are reported.
	FullDocument FullDocumentMode `bson:"fullDocument"`

	// ResumeAfter is an opaque resume token specifying the logical starting
	// point for the new feed.
	ResumeAfter bson.Raw `bson:"resumeAfter,omitempty"`

	// MaxAwait bounds, in milliseconds, how long the server waits for new
	// changes to satisfy a fetch.
	MaxAwait *int64 `bson:"maxAwaitTimeMS,omitempty"`

	// BatchSize is the number of documents to return per batch.
	BatchSize *int32 `bson:"batchSize,omitempty"`

	// Collation specifies a collation document for the aggregation.
	Collation bson.Raw `bson:"collation,omitempty"`

	// StartAtOperationTime limits the feed to changes that occurred at or
	// after the given server logical timestamp.
	StartAtOperationTime *primitive.Timestamp `bson:"startAtOperationTime,omitempty"`

	// StartAfter is like ResumeAfter but also allows watching collections that
	// were dropped and recreated, or newly renamed collections, without
	// missing notifications.
	StartAfter bson.Raw `bson:"startAfter,omitempty"`
}

// NewOptions returns options with every field at its default.
func NewOptions() *Options {
	return &Options{FullDocument: FullDocumentDefault}
}
