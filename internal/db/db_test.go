package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateIsIdempotent(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "prenos.sqlite3"))
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, Migrate(database))
	require.NoError(t, Migrate(database))

	var count int
	err = database.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('transfers', 'inventory', 'inventory_movements')`,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestInventoryQuantityCannotGoNegative(t *testing.T) {
	database := NewTestDB(t)

	_, err := database.Exec(`INSERT INTO locations (id, name, type) VALUES (1, 'Store', 'store')`)
	require.NoError(t, err)

	_, err = database.Exec(`INSERT INTO inventory (location_id, variant_id, quantity) VALUES (1, 'SKU/42', -1)`)
	assert.Error(t, err, "CHECK constraint must reject negative quantities")
}

func TestForeignKeysEnforcedOnEveryConnection(t *testing.T) {
	database := NewTestDB(t)
	database.SetMaxOpenConns(4)

	for i := 0; i < 4; i++ {
		_, err := database.Exec(`INSERT INTO user_locations (user_id, location_id) VALUES (99, 99)`)
		assert.Error(t, err, "foreign key violation expected on connection %d", i)
	}
}
