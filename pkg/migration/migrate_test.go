package migration

import (
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// openMemoryDB はテスト用のインメモリSQLiteを開く。
func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"sql/000002_add_index.up.sql": {Data: []byte(`
-- インデックスを追加する
CREATE INDEX IF NOT EXISTS idx_items_name ON items(name);
`)},
		"sql/000001_create_items.up.sql": {Data: []byte(`
CREATE TABLE items (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL
);
INSERT INTO items (id, name) VALUES (1, 'first');
`)},
		"sql/000001_create_items.down.sql": {Data: []byte(`DROP TABLE items;`)},
		"sql/README.md":                    {Data: []byte(`ignored`)},
		"sql/abc_invalid.up.sql":           {Data: []byte(`invalid`)},
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("バージョン順に適用され記録されること", func(t *testing.T) {
		t.Parallel()
		db := openMemoryDB(t)

		require.NoError(t, Run(db, testFS(), "sql", zerolog.Nop()))

		var name string
		require.NoError(t, db.QueryRow("SELECT name FROM items WHERE id = 1").Scan(&name))
		assert.Equal(t, "first", name)

		applied, err := getAppliedVersions(db)
		require.NoError(t, err)
		assert.Equal(t, map[int]bool{1: true, 2: true}, applied)
	})

	t.Run("2回目の実行では適用済みのマイグレーションをスキップすること", func(t *testing.T) {
		t.Parallel()
		db := openMemoryDB(t)

		require.NoError(t, Run(db, testFS(), "sql", zerolog.Nop()))
		require.NoError(t, Run(db, testFS(), "sql", zerolog.Nop()))

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("失敗したマイグレーションはロールバックされること", func(t *testing.T) {
		t.Parallel()
		db := openMemoryDB(t)
		fsys := fstest.MapFS{
			"sql/000001_broken.up.sql": {Data: []byte(`CREATE TABLE ok_table (id INTEGER); THIS IS NOT SQL;`)},
		}

		require.Error(t, Run(db, fsys, "sql", zerolog.Nop()))

		applied, err := getAppliedVersions(db)
		require.NoError(t, err)
		assert.Empty(t, applied)
	})

	t.Run("存在しないディレクトリではエラーになること", func(t *testing.T) {
		t.Parallel()
		db := openMemoryDB(t)
		require.Error(t, Run(db, fstest.MapFS{}, "missing", zerolog.Nop()))
	})
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	stmts := splitStatements(`
-- comment line
CREATE TABLE a (id INTEGER);

CREATE INDEX idx_a ON a(id);
`)
	assert.Equal(t, []string{"CREATE TABLE a (id INTEGER)", "CREATE INDEX idx_a ON a(id)"}, stmts)
}
