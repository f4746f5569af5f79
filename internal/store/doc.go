// Package store provides persistent storage for adbrain using SQLite.
//
// # Data Models
//
//   - Run: one workflow result, stored verbatim as JSON next to a few
//     indexed columns (topic, brand, status) used for listing
//   - ProviderCall: one attempt against a generation provider, used for
//     per-provider call and failure statistics
//   - similarity snapshots: the serialized analogy index, one row per
//     embedding engine, so memory survives restarts
//
// The workflow never reads results back to make decisions; persistence is
// purely a record.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("adbrain.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	if err := s.SaveRun(ctx, &store.Run{ID: id, Result: data}); err != nil {
//	    return err
//	}
//
// # Testing
//
// MockStore is an in-memory implementation of Store for unit tests.
//
// # Thread Safety
//
// SQLiteStore relies on database/sql connection pooling and SQLite WAL mode.
// MockStore guards its maps with a RWMutex.
package store
