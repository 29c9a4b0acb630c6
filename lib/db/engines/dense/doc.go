// Package dense implements an in-memory row database (db.RowDB) holding dense
// float64 rows grouped in tables.
//
// Rows are addressed by (table, row) and spread over independent shards. The
// shard is selected by an FNV-1a hash of the address with a per-instance seed,
// each shard keeps its rows in an xsync.MapOf. A row is allocated with the
// capacity of its table on the first write, reads of rows that were never
// written return zeros.
//
// Rows can only be changed by additive increments. A BatchInc holds the lock of
// its row while applying all pairs, so readers of the row see either none or all
// of the update. Increments to the same row from different writers commute, the
// final state does not depend on the order in which they are applied.
//
// Persistence Format:
//  1. Magic number "DLROWDB\x00"
//  2. Version number (currently 1)
//  3. Seed of the row hash
//  4. Table count, followed by (id, row capacity, staleness) per table
//  5. Row count, followed by (table, row, write index, value count, values) per row
//
// Snapshots are fuzzy across rows but consistent per row.
package dense
