package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/poiesic/retailrag/core"
	"github.com/poiesic/retailrag/storage"
)

func quote(name string) string {
	return pq.QuoteIdentifier(name)
}

// stagingSuffix names the table a replacement is built in.
const stagingSuffix = "_staging"

// maxStagingBase keeps staging identifiers within the Postgres name limit.
const maxStagingBase = 63 - len(stagingSuffix) - len("_pkey")

func stagingName(table string) (string, error) {
	if len(table) > maxStagingBase {
		return "", fmt.Errorf("%w: table name %q too long for staging", storage.ErrInvalidIdentifier, table)
	}
	return table + stagingSuffix, nil
}

// createTableSQL declares the catalog layout with explicit vector widths.
func createTableSQL(table string, dimension int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (", quote(table))
	b.WriteString("uniq_id text NOT NULL, ")
	b.WriteString("name text NOT NULL, ")
	b.WriteString("description text NOT NULL, ")
	b.WriteString("brand text NOT NULL DEFAULT '', ")
	b.WriteString("category text NOT NULL, ")
	b.WriteString("specifications jsonb NOT NULL DEFAULT '{}'::jsonb, ")
	b.WriteString("image_uri text NOT NULL, ")
	b.WriteString("ordinal integer NOT NULL, ")
	for _, m := range core.Modalities {
		fmt.Fprintf(&b, "%s vector(%d) NOT NULL, ", m.Column(), dimension)
	}
	fmt.Fprintf(&b, "CONSTRAINT %s PRIMARY KEY (uniq_id))", quote(table+"_pkey"))
	return b.String()
}

// createIndexSQL builds the CREATE INDEX statement for spec on table,
// naming the index name instead of spec.Name.
func createIndexSQL(table, name string, spec storage.IndexSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	switch spec.Method {
	case storage.IndexScaNN:
		return fmt.Sprintf("CREATE INDEX %s ON %s USING scann (%s cosine) WITH (num_leaves = %d)",
			quote(name), quote(table), quote(spec.Column), spec.NumLeaves), nil
	case storage.IndexIVFFlat:
		return fmt.Sprintf("CREATE INDEX %s ON %s USING ivfflat (%s vector_cosine_ops) WITH (lists = %d)",
			quote(name), quote(table), quote(spec.Column), spec.NumLeaves), nil
	}
	return "", fmt.Errorf("%w: unknown index method %q", storage.ErrInvalidIndex, spec.Method)
}

// swapSQL returns the statements that retire the live table and promote
// staging in its place, including constraint and index renames.
func swapSQL(table, staging string, indexes []storage.IndexSpec) []string {
	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", quote(table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(staging), quote(table)),
		fmt.Sprintf("ALTER TABLE %s RENAME CONSTRAINT %s TO %s", quote(table), quote(staging+"_pkey"), quote(table+"_pkey")),
	}
	for _, spec := range indexes {
		stmts = append(stmts, fmt.Sprintf("ALTER INDEX %s RENAME TO %s", quote(stagingIndexName(spec.Name)), quote(spec.Name)))
	}
	return stmts
}

// stagingIndexName is the temporary name an index carries while its table
// is being staged. Index names share the schema namespace with live ones.
func stagingIndexName(name string) string {
	const prefix = "stg_"
	if len(prefix)+len(name) > 63 {
		name = name[:63-len(prefix)]
	}
	return prefix + name
}

// searchSQL ranks table rows by cosine similarity on column. The vector
// placeholder appears twice; ordinal breaks ties by insertion order.
func searchSQL(table, column string) string {
	return fmt.Sprintf(
		"SELECT uniq_id, name, category, specifications::text AS specifications, "+
			"1 - (%[2]s <=> CAST(? AS vector)) AS cosine_similarity "+
			"FROM %[1]s ORDER BY %[2]s <=> CAST(? AS vector), ordinal LIMIT ?",
		quote(table), quote(column))
}

func listIDsSQL(table string) string {
	return fmt.Sprintf("SELECT uniq_id FROM %s ORDER BY ordinal", quote(table))
}

// extensionSQL lists the CREATE EXTENSION statements method needs.
func extensionSQL(method storage.IndexMethod) ([]string, error) {
	if _, err := storage.ParseIndexMethod(string(method)); err != nil {
		return nil, err
	}
	stmts := []string{"CREATE EXTENSION IF NOT EXISTS vector"}
	if method == storage.IndexScaNN {
		stmts = append(stmts, "CREATE EXTENSION IF NOT EXISTS alloydb_scann")
	}
	return stmts, nil
}

// createDatabaseSQL drops and recreates name. FORCE terminates sessions
// still attached to the old database.
func createDatabaseSQL(name string) []string {
	return []string{
		fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", quote(name)),
		fmt.Sprintf("CREATE DATABASE %s", quote(name)),
	}
}

// grantSQL grants the predefined data roles to principals.
func grantSQL(readUsers, writeUsers []string) []string {
	var stmts []string
	for _, u := range readUsers {
		stmts = append(stmts, fmt.Sprintf("GRANT pg_read_all_data TO %s", quote(u)))
	}
	for _, u := range writeUsers {
		stmts = append(stmts,
			fmt.Sprintf("GRANT pg_read_all_data TO %s", quote(u)),
			fmt.Sprintf("GRANT pg_write_all_data TO %s", quote(u)))
	}
	return stmts
}
