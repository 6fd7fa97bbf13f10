package migration

import (
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migrationNames(t *testing.T, dialect string) (ups, downs map[string]bool) {
	t.Helper()
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir+"/"+dialect)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups = map[string]bool{}
	downs = map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	return ups, downs
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	for _, dialect := range []string{DialectPostgres, DialectMySQL} {
		ups, downs := migrationNames(t, dialect)
		assert.Equal(t, ups, downs, dialect)
	}
}

func TestDialectsShipTheSameVersions(t *testing.T) {
	pg, _ := migrationNames(t, DialectPostgres)
	my, _ := migrationNames(t, DialectMySQL)
	assert.Equal(t, pg, my)
}

func readSchema(t *testing.T, dialect string) string {
	t.Helper()
	raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/"+dialect+"/000001_init_schema.up.sql")
	require.NoError(t, err)
	return string(raw)
}

func TestInitialSchemaDeclaresActiveAssignmentIndex(t *testing.T) {
	schema := readSchema(t, DialectPostgres)
	assert.Contains(t, schema, "ux_meter_assignments_active")
	assert.Contains(t, schema, "WHERE status IN ('pending', 'in_progress')")
	assert.Contains(t, schema, "CHECK (current_load >= 0)")
}

func TestMySQLSchemaEnforcesOneActiveAssignment(t *testing.T) {
	schema := readSchema(t, DialectMySQL)
	assert.Contains(t, schema, "UNIQUE KEY ux_meter_assignments_active (active_meter_id)")
	assert.Contains(t, schema, "CASE WHEN status IN ('pending', 'in_progress') THEN meter_id ELSE NULL END")
	assert.Contains(t, schema, "CHECK (current_load >= 0)")
	assert.Contains(t, schema, "UNIQUE KEY ux_meters_serial_number (serial_number)")
	assert.NotContains(t, schema, "jsonb")
	assert.NotContains(t, schema, "TIMESTAMPTZ")
}

func TestNewSource(t *testing.T) {
	for _, dialect := range []string{DialectPostgres, DialectMySQL} {
		src, err := newSource(dialect)
		require.NoError(t, err)

		version, err := src.First()
		require.NoError(t, err, dialect)
		assert.Equal(t, uint(1), version)
		require.NoError(t, src.Close())
	}
}

func TestRunMigrationsRejectsUnknownDialect(t *testing.T) {
	require.Error(t, RunMigrations(nil, DialectPostgres))

	err := RunMigrations(&sql.DB{}, "sqlite")
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
	assert.True(t, Supported(DialectMySQL))
	assert.False(t, Supported("sqlite"))
}
