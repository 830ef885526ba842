// Package journal persists the lifecycle of runs.
//
// A Recorder plugs into the runner as a Hooks implementation and appends one
// Entry per hook point to a Store. Stores keep a Run summary per run id that
// is updated as entries arrive, so the last agent to finish (the entry
// agent) determines the final status.
//
// Two stores are provided:
//   - InMemoryStore: process local, for tests and one-shot CLI runs
//   - SQLiteStore: durable, backed by modernc.org/sqlite
package journal
