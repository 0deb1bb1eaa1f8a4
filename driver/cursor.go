package driver

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Cursor is a live server-side cursor produced by an aggregate-style command.
//
// Next hands back whole server replies rather than individual batch elements;
// callers decode batches out of them. The reply to the originating command is
// replayed on the first call, and subsequent calls issue getMore commands.
type Cursor struct {
	db      *Database
	coll    string
	id      int64
	pref    ReadPreference
	pending bson.Raw

	maxAwaitMS *int64
	batchSize  *int32
}

// CommandCursor issues cmd, which must produce a cursor in its reply, and
// returns a live cursor over it. The read preference is retained for the
// getMore fetches that follow.
func (d *Database) CommandCursor(ctx context.Context, cmd bson.D, pref ReadPreference) (*Cursor, error) {
	reply, err := d.run(ctx, cmd, pref)
	if err != nil {
		return nil, err
	}
	id, coll, err := cursorInfo(reply)
	if err != nil {
		return nil, err
	}
	return &Cursor{db: d, coll: coll, id: id, pref: pref, pending: reply}, nil
}

// ID returns the server-side cursor id. It becomes 0 once the server has
// closed the cursor.
func (c *Cursor) ID() int64 {
	return c.id
}

// SetMaxAwaitMS bounds how long each getMore lets the server wait for results
// before returning an empty batch.
func (c *Cursor) SetMaxAwaitMS(ms int64) {
	c.maxAwaitMS = &ms
}

// SetBatchSize caps the number of documents per getMore batch.
func (c *Cursor) SetBatchSize(n int32) {
	c.batchSize = &n
}

// Next returns the next raw server reply carrying a batch. A nil reply with a
// nil error means the server has nothing to hand out right now, not that the
// stream ended.
func (c *Cursor) Next(ctx context.Context) (bson.Raw, error) {
	if c.pending != nil {
		reply := c.pending
		c.pending = nil
		return reply, nil
	}
	if c.id == 0 {
		return nil, nil
	}

	cmd := bson.D{{Key: "getMore", Value: c.id}, {Key: "collection", Value: c.coll}}
	if c.maxAwaitMS != nil {
		cmd = append(cmd, bson.E{Key: "maxTimeMS", Value: *c.maxAwaitMS})
	}
	if c.batchSize != nil {
		cmd = append(cmd, bson.E{Key: "batchSize", Value: *c.batchSize})
	}
	reply, err := c.db.run(ctx, cmd, c.pref)
	if err != nil {
		return nil, err
	}
	id, _, err := cursorInfo(reply)
	if err != nil {
		return nil, err
	}
	c.id = id
	return reply, nil
}

// cursorInfo extracts the cursor id and collection name from a command reply.
func cursorInfo(reply bson.Raw) (int64, string, error) {
	cur, err := reply.LookupErr("cursor")
	if err != nil {
		return 0, "", fmt.Errorf("malformed cursor reply: %w", err)
	}
	doc, ok := cur.DocumentOK()
	if !ok {
		return 0, "", fmt.Errorf("malformed cursor reply: cursor field is a %s, not a document", cur.Type)
	}

	idVal, err := doc.LookupErr("id")
	if err != nil {
		return 0, "", fmt.Errorf("malformed cursor reply: %w", err)
	}
	id, ok := idVal.Int64OK()
	if !ok {
		return 0, "", fmt.Errorf("malformed cursor reply: id field is a %s, not an int64", idVal.Type)
	}

	nsVal, err := doc.LookupErr("ns")
	if err != nil {
		return 0, "", fmt.Errorf("malformed cursor reply: %w", err)
	}
	ns, ok := nsVal.StringValueOK()
	if !ok {
		return 0, "", fmt.Errorf("malformed cursor reply: ns field is a %s, not a string", nsVal.Type)
	}

	// The namespace is "db.collection"; getMore wants only the collection.
	coll := ns
	if i := strings.Index(ns, "."); i >= 0 {
		coll = ns[i+1:]
	}
	return id, coll, nil
}
