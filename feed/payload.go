package feed

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// payload is the reply to a successful change feed aggregate or getMore
// command.
type payload struct {
	Cursor        payloadCursor       `bson:"cursor"`
	OperationTime primitive.Timestamp `bson:"operationTime"`
	ClusterTime   bson.Raw            `bson:"$clusterTime"`
}

// payloadCursor is the cursor document of an aggregate or getMore reply. The
// server calls the batch firstBatch on the initial reply and nextBatch on
// every one after that.
type payloadCursor struct {
	NS                   string   `bson:"ns"`
	ID                   int64    `bson:"id"`
	FirstBatch           []Event  `bson:"firstBatch"`
	NextBatch            []Event  `bson:"nextBatch"`
	PostBatchResumeToken bson.Raw `bson:"postBatchResumeToken"`
}

// batch returns whichever batch the reply carried, in server order.
func (c payloadCursor) batch() []Event {
	if c.FirstBatch != nil {
		return c.FirstBatch
	}
	return c.NextBatch
}
