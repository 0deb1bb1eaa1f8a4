package feed

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"mongo-change-feed/driver"
)

// Cursor pulls raw server replies from a live server-side cursor. A nil reply
// with a nil error means nothing is available right now, not end of stream.
type Cursor interface {
	Next(ctx context.Context) (bson.Raw, error)
}

// cursorOpener issues an aggregate-style command and returns a live cursor
// for its result, configured from the feed options.
type cursorOpener interface {
	openCursor(ctx context.Context, cmd bson.D, pref driver.ReadPreference, opts *Options) (Cursor, error)
}

// databaseOpener adapts a database handle to the cursorOpener seam.
type databaseOpener struct {
	db *driver.Database
}

func (o databaseOpener) openCursor(ctx context.Context, cmd bson.D, pref driver.ReadPreference, opts *Options) (Cursor, error) {
	c, err := o.db.CommandCursor(ctx, cmd, pref)
	if err != nil {
		return nil, err
	}
	// MaxAwait and BatchSize also govern the getMore fetches, not just the
	// initial aggregation.
	if opts.MaxAwait != nil {
		c.SetMaxAwaitMS(*opts.MaxAwait)
	}
	if opts.BatchSize != nil {
		c.SetBatchSize(*opts.BatchSize)
	}
	return c, nil
}

// targetKind discriminates what a feed watches.
type targetKind int

const (
	targetCollection targetKind = iota
	targetDatabase
	targetDeployment
)

// target identifies what a feed watches and carries everything needed to
// reissue its aggregation. The database and client handles behind the opener
// are shared with the caller; the feed does not own them.
type target struct {
	kind targetKind

	// coll is set only for collection targets.
	coll string

	opener cursorOpener
}

// forCluster reports whether the feed stage must carry allChangesForCluster.
func (t target) forCluster() bool {
	return t.kind == targetDeployment
}

// command assembles the aggregate command requesting a streaming cursor over
// the given stage list.
func (t target) command(stages []bson.D) bson.D {
	var agg interface{} = int32(1)
	if t.kind == targetCollection {
		agg = t.coll
	}
	pipeline := make(bson.A, 0, len(stages))
	for _, s := range stages {
		pipeline = append(pipeline, s)
	}
	return bson.D{
		{Key: "aggregate", Value: agg},
		{Key: "pipeline", Value: pipeline},
		{Key: "cursor", Value: bson.D{}},
	}
}
