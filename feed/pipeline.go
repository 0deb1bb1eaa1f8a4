package feed

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// pipelineBuilder assembles the stage list for a change feed aggregation: the
// $changeStream stage carrying the options and at most one resume directive,
// followed by the caller's original stages.
//
// The pipeline and options must be the original, unmodified values the feed
// was first built with, so that every rebuild is computed from the same
// baseline. The resume bookkeeping setters may be called unconditionally; the
// builder picks the single directive to emit.
type pipelineBuilder struct {
	pipeline             []bson.D
	options              *Options
	bufferLen            int
	forCluster           bool
	documentResumeToken  bson.Raw
	postBatchResumeToken bson.Raw
	lastOpTime           *primitive.Timestamp
}

func newPipelineBuilder(pipeline []bson.D, options *Options, bufferLen int) *pipelineBuilder {
	return &pipelineBuilder{pipeline: pipeline, options: options, bufferLen: bufferLen}
}

// ForCluster marks the output pipeline as watching the entire deployment.
func (b *pipelineBuilder) ForCluster() *pipelineBuilder {
	b.forCluster = true
	return b
}

// DocumentResumeToken supplies the token of the last document handed to the
// caller, if any.
func (b *pipelineBuilder) DocumentResumeToken(tok bson.Raw) *pipelineBuilder {
	b.documentResumeToken = tok
	return b
}

// PostBatchResumeToken supplies the most recent batch-level checkpoint, if any.
func (b *pipelineBuilder) PostBatchResumeToken(tok bson.Raw) *pipelineBuilder {
	b.postBatchResumeToken = tok
	return b
}

// LastOperationTime supplies the operation time observed on the most recent
// fetch, if any.
func (b *pipelineBuilder) LastOperationTime(ts *primitive.Timestamp) *pipelineBuilder {
	b.lastOpTime = ts
	return b
}

// Build produces the full stage list. It performs no I/O and, given equal
// inputs, always produces identical output.
func (b *pipelineBuilder) Build() ([]bson.D, error) {
	raw, err := bson.Marshal(b.options)
	if err != nil {
		return nil, ConfigError{Reason: "serializing change feed options", Err: err}
	}
	var opts bson.D
	if err := bson.Unmarshal(raw, &opts); err != nil {
		return nil, ConfigError{Reason: "serializing change feed options", Err: err}
	}

	if b.forCluster {
		opts = docSet(opts, "allChangesForCluster", true)
	}

	switch {
	// A batch-level checkpoint wins, but only once its batch has been fully
	// drained; resuming from it earlier would skip the undelivered remainder.
	case len(b.postBatchResumeToken) > 0 && b.bufferLen == 0:
		opts = docSet(opts, "resumeAfter", b.postBatchResumeToken)
		opts = docRemove(opts, "startAfter")
		opts = docRemove(opts, "startAtOperationTime")

	// Next best: the token of the last document actually handed out.
	case len(b.documentResumeToken) > 0:
		opts = docSet(opts, "resumeAfter", b.documentResumeToken)
		opts = docRemove(opts, "startAfter")
		opts = docRemove(opts, "startAtOperationTime")

	// A caller-supplied startAfter is converted into the resume directive.
	case len(b.options.StartAfter) > 0:
		opts = docSet(opts, "resumeAfter", b.options.StartAfter)
		opts = docRemove(opts, "startAfter")

	// A caller-supplied resumeAfter is already carried by the serialized
	// options; pass it through unchanged.
	case len(b.options.ResumeAfter) > 0:

	// No token anywhere: fall back to a time-based start. The time observed
	// most recently outranks the one supplied at construction.
	case b.lastOpTime != nil || b.options.StartAtOperationTime != nil:
		ts := b.options.StartAtOperationTime
		if b.lastOpTime != nil {
			ts = b.lastOpTime
		}
		opts = docSet(opts, "startAtOperationTime", *ts)
	}
	// With none of the above, the stage goes out exactly as the caller
	// configured it: a fresh start.

	stages := make([]bson.D, 0, len(b.pipeline)+1)
	stages = append(stages, bson.D{{Key: "$changeStream", Value: opts}})
	stages = append(stages, b.pipeline...)
	return stages, nil
}

// docSet replaces the value at key, or appends the element if key is absent.
func docSet(d bson.D, key string, value interface{}) bson.D {
	for i := range d {
		if d[i].Key == key {
			d[i].Value = value
			return d
		}
	}
	return append(d, bson.E{Key: key, Value: value})
}

// docRemove drops the element with the given key, if present.
func docRemove(d bson.D, key string) bson.D {
	for i := range d {
		if d[i].Key == key {
			return append(d[:i], d[i+1:]...)
		}
	}
	return d
}
