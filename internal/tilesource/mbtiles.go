package tilesource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	log "github.com/sirupsen/logrus"

	"vectormap/pkg/tiles"
)

// MBTiles reads and writes tiles in an MBTiles archive. Rows are stored
// TMS-flipped as the format requires.
type MBTiles struct {
	db       *sql.DB
	writable bool
}

// OpenMBTiles opens an existing archive read-only.
func OpenMBTiles(path string) (*MBTiles, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &MBTiles{db: db}, nil
}

// CreateMBTiles opens or creates a writable archive.
func CreateMBTiles(path string) (*MBTiles, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	stmts := []string{
		"PRAGMA synchronous=0",
		"PRAGMA journal_mode=DELETE",
		"create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob);",
		"create table if not exists metadata (name text, value text);",
		"create unique index if not exists name on metadata (name);",
		"create unique index if not exists tile_index on tiles (zoom_level, tile_column, tile_row);",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", s, err)
		}
	}
	return &MBTiles{db: db, writable: true}, nil
}

// Fetch implements Source.
func (m *MBTiles) Fetch(ctx context.Context, id tiles.TileID) ([]byte, error) {
	var data []byte
	err := m.db.QueryRowContext(ctx,
		"select tile_data from tiles where zoom_level = ? and tile_column = ? and tile_row = ?",
		id.Zoom, id.X, id.TMSRow()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read tile %s: %w", id, err)
	}
	return data, nil
}

// Put stores or replaces one tile.
func (m *MBTiles) Put(id tiles.TileID, data []byte) error {
	_, err := m.db.Exec(
		"insert or replace into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);",
		id.Zoom, id.X, id.TMSRow(), data)
	if err != nil {
		return fmt.Errorf("write tile %s: %w", id, err)
	}
	return nil
}

// SetMetadata stores one metadata entry.
func (m *MBTiles) SetMetadata(name, value string) error {
	_, err := m.db.Exec("insert or replace into metadata (name, value) values (?, ?);", name, value)
	return err
}

// Metadata returns every metadata entry.
func (m *MBTiles) Metadata() (map[string]string, error) {
	rows, err := m.db.Query("select name, value from metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Count returns the number of stored tiles.
func (m *MBTiles) Count() (int, error) {
	var n int
	err := m.db.QueryRow("select count(*) from tiles").Scan(&n)
	return n, err
}

func (m *MBTiles) Close() error {
	if m.writable {
		if _, err := m.db.Exec("ANALYZE;"); err != nil {
			log.Warnf("mbtiles analyze: %v", err)
		}
	}
	return m.db.Close()
}
