// Package memory persists conversation state between turns. The Manager
// checkpoints state after each completed turn, restores it at the start of
// the next, and sweeps expired records on a retention schedule. Two stores
// are provided: a process-local InMemoryStore for tests and ephemeral use,
// and a FileStore that writes JSON snapshots under a directory.
package memory
