package redis

// Redis key naming conventions for run history.
// All keys are prefixed with "architect:" to avoid collisions.

const keyPrefix = "architect:"

// runKey returns the Hash key for a run: architect:run:{id}
func runKey(id string) string { return keyPrefix + "run:" + id }

// runsKey is the Sorted Set indexing every run by scheduled time.
const runsKey = keyPrefix + "runs"

// nameIndexKey returns the Sorted Set indexing runs of one job name:
// architect:runs:name:{name}
func nameIndexKey(name string) string { return keyPrefix + "runs:name:" + name }
