// Package archive serves tiles from a single-file SQLite archive. Tile
// bodies are stored zstd-compressed in the BufferGeometry JSON format.
package archive

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/IvanBrykalov/tilewindow/cache"
	"github.com/IvanBrykalov/tilewindow/model"
	"github.com/IvanBrykalov/tilewindow/pkg/logger"
	"github.com/klauspost/compress/zstd"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrTileNotFound is returned by LoadTile for coordinates without a tile.
var ErrTileNotFound = errors.New("archive: tile not found")

// MetaTileSize is the meta key holding the world-space tile size.
const MetaTileSize = "tile_size"

// Archive implements cache.Loader on top of SQLite. It is safe for
// concurrent use.
type Archive struct {
	db     *sql.DB
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	logger logger.Logger
}

var _ cache.Loader = (*Archive)(nil)

// Open opens (creating if needed) the archive at path and migrates it to
// the latest schema.
func Open(ctx context.Context, path string, l logger.Logger) (*Archive, error) {
	if l == nil {
		l = logger.Nop()
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &Archive{db: db, logger: l}
	if err := a.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}

	a.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.dec, err = zstd.NewReader(nil)
	if err != nil {
		_ = a.enc.Close()
		_ = db.Close()
		return nil, err
	}

	l.Info("tile archive opened", "path", path)
	return a, nil
}

func (a *Archive) runMigrations(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, a.db, fsys)
	if err != nil {
		return err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		a.logger.Debug("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Close releases the codecs and the database.
func (a *Archive) Close() error {
	a.dec.Close()
	_ = a.enc.Close()
	return a.db.Close()
}

// Put stores g as tile (x, z), replacing any previous body.
func (a *Archive) Put(ctx context.Context, x, z int, g *model.Geometry) error {
	var raw bytes.Buffer
	if err := model.Encode(&raw, g); err != nil {
		return fmt.Errorf("archive: encode tile %d,%d: %w", x, z, err)
	}
	blob := a.enc.EncodeAll(raw.Bytes(), nil)

	query := `INSERT INTO tiles (x, z, data, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(x, z) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`

	if _, err := a.db.ExecContext(ctx, query, x, z, blob, time.Now().Unix()); err != nil {
		a.logger.Error("archive put failed", "x", x, "z", z, "error", err)
		return err
	}
	return nil
}

// LoadTile implements cache.Loader.
func (a *Archive) LoadTile(ctx context.Context, x, z int) (cache.Model, error) {
	query := `SELECT data
	FROM tiles
	WHERE x = ? AND z = ?`

	var blob []byte
	err := a.db.QueryRowContext(ctx, query, x, z).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d,%d", ErrTileNotFound, x, z)
		}
		return nil, err
	}

	raw, err := a.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: tile %d,%d: zstd: %w", x, z, err)
	}
	g, err := model.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("archive: tile %d,%d: %w", x, z, err)
	}
	return g, nil
}

// Count returns the number of stored tiles.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tiles`).Scan(&n)
	return n, err
}

// SetMeta stores an archive-wide setting.
func (a *Archive) SetMeta(ctx context.Context, key, value string) error {
	_, err := a.db.ExecContext(ctx, `INSERT INTO archive_meta (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Meta returns an archive-wide setting; ok is false when it is unset.
func (a *Archive) Meta(ctx context.Context, key string) (value string, ok bool, err error) {
	err = a.db.QueryRowContext(ctx, `SELECT value FROM archive_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return value, err == nil, err
}

// TileSize reads MetaTileSize. ok is false when the archive does not record one.
func (a *Archive) TileSize(ctx context.Context) (size float64, ok bool, err error) {
	v, ok, err := a.Meta(ctx, MetaTileSize)
	if err != nil || !ok {
		return 0, false, err
	}
	size, err = strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("archive: bad %s %q: %w", MetaTileSize, v, err)
	}
	return size, true, nil
}
