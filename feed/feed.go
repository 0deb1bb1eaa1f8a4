// Package feed implements resumable change feeds: live, restartable cursors
// over a deployment's change notifications that transparently recover from
// transient failures by rebuilding the underlying aggregation from the most
// precise resume point known.
package feed

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mongo-change-feed/driver"
	"mongo-change-feed/logger"
)

var log = logger.Named("changefeed")

// Feed is a pull-based, potentially infinite sequence of change notifications.
//
// A Feed exclusively owns its buffer, resume bookkeeping and cursor handle and
// is not safe for concurrent use; TryNext may block on network I/O, bounded by
// the configured MaxAwait. There is no terminal state: a caller stops a feed
// by ceasing to call TryNext and discarding it.
type Feed struct {
	target target

	// cursor may be swapped out during a transparent resume. The feed's
	// identity and resume bookkeeping persist across the swap.
	cursor Cursor

	// buffer holds the not-yet-consumed remainder of the most recent batch,
	// in server order. A new fetch must never be issued while it is
	// non-empty; doing so would corrupt the resume-token precedence.
	buffer []Event

	// documentResumeToken is the _id of the event TryNext last returned.
	documentResumeToken bson.Raw

	// postBatchResumeToken is the most recent batch-level checkpoint reported
	// by the server, regardless of how much of the batch was consumed.
	// Pre-4.2 servers never send one.
	postBatchResumeToken bson.Raw

	// pipeline and options are the original values supplied at construction.
	// Rebuilt aggregations are always computed from this baseline.
	pipeline []bson.D
	options  *Options

	// readPref is reused for server selection during an automatic resume.
	readPref driver.ReadPreference

	// lastOpTime is the operation time observed on the most recent fetch.
	lastOpTime *primitive.Timestamp

	// initialAgg is true until the first successful fetch. No error is
	// recoverable before then.
	initialAgg bool
}

// WatchCollection opens a change feed over a single collection.
func WatchCollection(ctx context.Context, db *driver.Database, coll string, pipeline []bson.D, options *Options, pref driver.ReadPreference) (*Feed, error) {
	t := target{kind: targetCollection, coll: coll, opener: databaseOpener{db: db}}
	return watch(ctx, t, pipeline, options, pref)
}

// WatchDatabase opens a change feed over every collection of a database.
func WatchDatabase(ctx context.Context, db *driver.Database, pipeline []bson.D, options *Options, pref driver.ReadPreference) (*Feed, error) {
	t := target{kind: targetDatabase, opener: databaseOpener{db: db}}
	return watch(ctx, t, pipeline, options, pref)
}

// WatchDeployment opens a change feed over the client's entire deployment.
// The aggregation is issued against the admin database with
// allChangesForCluster set.
func WatchDeployment(ctx context.Context, client *driver.Client, pipeline []bson.D, options *Options, pref driver.ReadPreference) (*Feed, error) {
	t := target{kind: targetDeployment, opener: databaseOpener{db: client.Database("admin")}}
	return watch(ctx, t, pipeline, options, pref)
}

// watch builds the initial aggregation from empty resume state and opens its
// cursor synchronously. Failures here propagate; nothing is retried before
// the first successful fetch.
func watch(ctx context.Context, t target, pipeline []bson.D, options *Options, pref driver.ReadPreference) (*Feed, error) {
	if options == nil {
		options = NewOptions()
	}
	opts := *options
	if opts.FullDocument == "" {
		opts.FullDocument = FullDocumentDefault
	}

	f := &Feed{
		target:     t,
		pipeline:   pipeline,
		options:    &opts,
		readPref:   pref,
		initialAgg: true,
	}
	cursor, err := f.newCursor(ctx)
	if err != nil {
		return nil, err
	}
	f.cursor = cursor
	return f, nil
}

// ResumeToken returns the token a caller should persist to resume the feed at
// its current logical position, or nil before the feed has one. The choice
// mirrors the precedence used when a cursor is actually rebuilt, so the
// persisted token reproduces the exact same resume point.
func (f *Feed) ResumeToken() bson.Raw {
	if len(f.postBatchResumeToken) > 0 && len(f.buffer) == 0 {
		return f.postBatchResumeToken
	}
	return f.documentResumeToken
}

// TryNext returns the next change notification if one is available.
//
// A nil event with a nil error means the server has no changes right now; the
// feed stays live and later calls may produce more. An error is always fatal:
// recoverable failures are absorbed by a single transparent rebuild of the
// underlying cursor and never reach the caller.
func (f *Feed) TryNext(ctx context.Context) (*Event, error) {
	if len(f.buffer) == 0 {
		if err := f.fill(ctx); err != nil {
			return nil, err
		}
	}
	if len(f.buffer) == 0 {
		return nil, nil
	}

	ev := f.buffer[0]
	f.buffer = f.buffer[1:]
	f.documentResumeToken = ev.ID
	return &ev, nil
}

// fill refreshes the buffer from the live cursor, resuming once on a
// recoverable error. It is a no-op while the current batch is not fully
// drained.
func (f *Feed) fill(ctx context.Context) error {
	if len(f.buffer) > 0 {
		return nil
	}

	raw, err := f.cursor.Next(ctx)
	if err != nil {
		if !f.recoverable(err) {
			return err
		}

		// Rebuild from the last logical resume point and retry the fetch
		// exactly once. A failure on the rebuilt cursor propagates.
		log.Debugw("rebuilding change feed cursor after recoverable error", "error", err)
		cursor, cerr := f.newCursor(ctx)
		if cerr != nil {
			return cerr
		}
		f.cursor = cursor
		raw, err = f.cursor.Next(ctx)
		if err != nil {
			return err
		}
	}
	if raw == nil {
		return nil
	}

	p, err := decodePayload(raw)
	if err != nil {
		return err
	}

	f.postBatchResumeToken = p.Cursor.PostBatchResumeToken
	f.buffer = p.Cursor.batch()
	f.lastOpTime = &p.OperationTime
	f.initialAgg = false
	return nil
}

// decodePayload decodes a raw fetch reply, insisting on the fields the resume
// algorithm cannot live without.
func decodePayload(raw bson.Raw) (*payload, error) {
	if _, err := raw.LookupErr("cursor"); err != nil {
		return nil, DecodeError{Err: err}
	}
	if _, err := raw.LookupErr("operationTime"); err != nil {
		return nil, DecodeError{Err: err}
	}

	var p payload
	if err := bson.Unmarshal(raw, &p); err != nil {
		return nil, DecodeError{Err: err}
	}

	// The most common way to lose the _id is a caller-applied $project stage.
	batch := p.Cursor.batch()
	for i := range batch {
		if len(batch[i].ID) == 0 {
			return nil, ConfigError{Reason: missingResumeTokenMsg}
		}
	}
	return &p, nil
}

// recoverable reports whether fetching may transparently resume after err.
// Network-level failures and almost every server error are worth one retry;
// the handful of codes the server cannot resume from, and anything at all
// before the first successful fetch, are not.
func (f *Feed) recoverable(err error) bool {
	if f.initialAgg {
		return false
	}
	var cmdErr driver.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case driver.CodeInterrupted, driver.CodeCappedPositionLost, driver.CodeCursorKilled:
			return false
		}
	}
	return true
}

// newCursor rebuilds the aggregation from the feed's current resume state and
// opens a live cursor for it.
func (f *Feed) newCursor(ctx context.Context) (Cursor, error) {
	b := newPipelineBuilder(f.pipeline, f.options, len(f.buffer)).
		PostBatchResumeToken(f.postBatchResumeToken).
		DocumentResumeToken(f.documentResumeToken).
		LastOperationTime(f.lastOpTime)
	if f.target.forCluster() {
		b = b.ForCluster()
	}

	stages, err := b.Build()
	if err != nil {
		return nil, err
	}
	return f.target.opener.openCursor(ctx, f.target.command(stages), f.readPref, f.options)
}
