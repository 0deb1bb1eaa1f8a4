package driver

import "go.mongodb.org/mongo-driver/bson"

// ReadMode indicates how a server should be selected for read operations.
type ReadMode string

const (
	Primary            ReadMode = "primary"
	PrimaryPreferred   ReadMode = "primaryPreferred"
	Secondary          ReadMode = "secondary"
	SecondaryPreferred ReadMode = "secondaryPreferred"
	Nearest            ReadMode = "nearest"
)

// ReadPreference indicates which servers are eligible to serve a read
// operation. The zero value selects the primary.
type ReadPreference struct {
	Mode ReadMode
}

// Document returns the $readPreference document for this preference.
func (rp ReadPreference) Document() bson.D {
	mode := rp.Mode
	if mode == "" {
		mode = Primary
	}
	return bson.D{{Key: "mode", Value: string(mode)}}
}
