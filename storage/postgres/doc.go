// Package postgres implements storage.CatalogStore and storage.Admin on
// AlloyDB or any Postgres with pgvector.
//
// Connections go through database/sql with a lib/pq connector that asks an
// oauth2.TokenSource for the password each time the pool dials, so IAM
// tokens are refreshed without restarting. Statements are issued through
// gorm; vector and jsonb columns use pgvector-go and gorm datatypes.
//
// A replace builds the new table under a staging name, loads it in batches,
// builds its ANN indexes and renames everything into place in a single
// transaction. Concurrent searches see the old table until commit.
package postgres
