package feed

import "go.mongodb.org/mongo-driver/bson"

// OperationType describes the kind of operation a change notification reports.
type OperationType string

const (
	// OperationTypeInsert describes an insert operation.
	OperationTypeInsert OperationType = "insert"
	// OperationTypeUpdate describes a partial update operation.
	OperationTypeUpdate OperationType = "update"
	// OperationTypeReplace describes a full-document replace operation.
	OperationTypeReplace OperationType = "replace"
	// OperationTypeDelete describes a delete operation.
	OperationTypeDelete OperationType = "delete"
	// OperationTypeInvalidate means the feed's target is no longer watchable.
	OperationTypeInvalidate OperationType = "invalidate"
	// OperationTypeDrop describes a collection drop.
	OperationTypeDrop OperationType = "drop"
	// OperationTypeDropDatabase describes a database drop.
	OperationTypeDropDatabase OperationType = "dropDatabase"
	// OperationTypeRename describes a collection rename.
	OperationTypeRename OperationType = "rename"
)

// Event is a single change notification document.
// https://docs.mongodb.com/manual/reference/change-events/#change-stream-output
type Event struct {
	// ID is the opaque token used to resume an interrupted feed. If a
	// caller-supplied pipeline stage filters it out, the feed fails rather
	// than silently losing resumability.
	ID bson.Raw `bson:"_id"`

	// OperationType is one of the constants above. Types added by servers
	// newer than this client are preserved as-is.
	OperationType OperationType `bson:"operationType,omitempty"`

	// Namespace names where the change happened. Absent for invalidate-class
	// events.
	Namespace *Namespace `bson:"ns,omitempty"`

	// DocumentKey identifies the changed document. Present for inserts,
	// updates, replaces and deletes. For sharded collections it carries the
	// shard key components followed by _id when _id is not part of the key.
	DocumentKey bson.Raw `bson:"documentKey,omitempty"`

	// UpdateDescription is present only for update operations.
	UpdateDescription *UpdateDescription `bson:"updateDescription,omitempty"`

	// FullDocument is always present for inserts and replaces. For updates it
	// is present only under FullDocumentUpdateLookup, and holds BSON null if
	// the document was deleted after the change occurred.
	FullDocument bson.RawValue `bson:"fullDocument,omitempty"`
}

// Namespace names the database and collection in which a change happened.
type Namespace struct {
	DB   string `bson:"db"`
	Coll string `bson:"coll"`
}

// UpdateDescription describes the updated and removed fields of an update
// operation.
type UpdateDescription struct {
	// UpdatedFields maps changed field names to their new values.
	UpdatedFields bson.Raw `bson:"updatedFields"`

	// RemovedFields lists the field names removed from the document.
	RemovedFields []string `bson:"removedFields"`
}
