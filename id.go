package architect

import "github.com/xraph/architect/id"

// ID is the identifier type for job instances.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
