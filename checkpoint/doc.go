// Package checkpoint records which documents a logical run has already
// committed so that a restarted run skips them.
//
// FileStore keeps the committed ids as a JSON array of integers and replaces
// the file atomically on every save. Tracker layers the in-memory committed
// set, a claim set for documents currently in flight, and serialized saves on
// top of a Store.
package checkpoint
