// Package driver holds the command-dispatch layer a change feed runs on: thin
// client and database handles over a pluggable command runner, plus the live
// cursor used to fetch batches. Wire framing, TLS handshakes and server
// selection belong to Runner implementations, not to this package.
package driver

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Runner issues a single database command against a deployment and returns
// the raw server reply. Implementations handle wire framing and connection
// management (see the pool package) and should report transport failures as
// NetworkError.
type Runner interface {
	Run(ctx context.Context, db string, cmd bson.D, pref ReadPreference) (bson.Raw, error)
}

// Client is a handle to a deployment. Handles are cheap and may be shared.
type Client struct {
	runner Runner
}

// NewClient returns a client issuing commands through the given runner.
func NewClient(runner Runner) *Client {
	return &Client{runner: runner}
}

// Database returns a handle to the named database.
func (c *Client) Database(name string) *Database {
	return &Database{client: c, name: name}
}

// Database is a handle to a single database of a deployment.
type Database struct {
	client *Client
	name   string
}

// Name returns the database name.
func (d *Database) Name() string {
	return d.name
}

// run issues cmd against this database and surfaces failures the server
// reported in the reply body as CommandError.
func (d *Database) run(ctx context.Context, cmd bson.D, pref ReadPreference) (bson.Raw, error) {
	reply, err := d.client.runner.Run(ctx, d.name, cmd, pref)
	if err != nil {
		return nil, err
	}
	if err := replyErr(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// replyErr converts a non-ok command reply into a CommandError.
func replyErr(reply bson.Raw) error {
	v, err := reply.LookupErr("ok")
	if err != nil {
		return fmt.Errorf("malformed command reply: missing ok field")
	}
	if numericOK(v) {
		return nil
	}

	cmdErr := CommandError{}
	if code, err := reply.LookupErr("code"); err == nil {
		if c, ok := code.Int32OK(); ok {
			cmdErr.Code = c
		}
	}
	if msg, err := reply.LookupErr("errmsg"); err == nil {
		if m, ok := msg.StringValueOK(); ok {
			cmdErr.Message = m
		}
	}
	if name, err := reply.LookupErr("codeName"); err == nil {
		if n, ok := name.StringValueOK(); ok {
			cmdErr.Name = n
		}
	}
	return cmdErr
}

// numericOK reports whether v holds the numeric value 1, in any of the types
// the server uses for the ok field.
func numericOK(v bson.RawValue) bool {
	if d, ok := v.DoubleOK(); ok {
		return d == 1
	}
	if i, ok := v.Int32OK(); ok {
		return i == 1
	}
	if i, ok := v.Int64OK(); ok {
		return i == 1
	}
	if b, ok := v.BooleanOK(); ok {
		return b
	}
	return false
}
