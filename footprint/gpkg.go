package footprint

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"
	_ "github.com/mattn/go-sqlite3" // driver used by gpkg
)

const (
	tableName      = "tiles"
	geometryColumn = "geom"
	pageSize       = 1000
)

// GeoPackage writes footprints to the polygon table "tiles" of a GeoPackage.
// Footprints are buffered and inserted per page in one transaction.
type GeoPackage struct {
	handle  *gpkg.Handle
	srs     gpkg.SpatialReferenceSystem
	pending []Footprint
	extent  *geom.Extent
	written int
}

// CreateGeoPackage creates a new GeoPackage at path, replacing an existing file.
func CreateGeoPackage(path string, srsID int) (*GeoPackage, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	handle, err := gpkg.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage: %w", err)
	}
	g := &GeoPackage{handle: handle, srs: spatialReferenceSystem(srsID)}
	if err = g.buildTable(); err != nil {
		handle.Close()
		return nil, err
	}
	return g, nil
}

func spatialReferenceSystem(srsID int) gpkg.SpatialReferenceSystem {
	return gpkg.SpatialReferenceSystem{
		Name:                   fmt.Sprintf("EPSG:%d", srsID),
		ID:                     srsID,
		Organization:           "EPSG",
		OrganizationCoordsysID: srsID,
		Definition:             "undefined",
	}
}

// createSQL is the statement creating the footprint table.
func createSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s"(fid INTEGER PRIMARY KEY, tile_id TEXT NOT NULL, point_count INTEGER NOT NULL, %s POLYGON);`,
		tableName, geometryColumn)
}

func insertSQL() string {
	return fmt.Sprintf(`INSERT INTO "%s"(tile_id,point_count,%s) VALUES(?,?,?)`, tableName, geometryColumn)
}

// buildTable creates the destination table with the necessary gpkg_ information
func (g *GeoPackage) buildTable() error {
	if err := g.handle.UpdateSRS(g.srs); err != nil {
		return err
	}
	if _, err := g.handle.Exec(createSQL()); err != nil {
		return fmt.Errorf("error building table in GeoPackage: %w", err)
	}
	err := g.handle.AddGeometryTable(gpkg.TableDescription{
		Name:          tableName,
		ShortName:     tableName,
		Description:   "tile footprints",
		GeometryField: geometryColumn,
		GeometryType:  gpkg.Polygon,
		SRS:           int32(g.srs.ID),
		Z:             gpkg.Prohibited,
		M:             gpkg.Prohibited,
	})
	if err != nil {
		return fmt.Errorf("error adding geometry table in GeoPackage: %w", err)
	}
	return nil
}

func (g *GeoPackage) Write(fp Footprint) error {
	if err := fp.validate(); err != nil {
		return err
	}
	g.pending = append(g.pending, fp)
	if len(g.pending) >= pageSize {
		return g.flush()
	}
	return nil
}

func (g *GeoPackage) flush() (err error) {
	if len(g.pending) == 0 {
		return nil
	}
	tx, err := g.handle.Begin()
	if err != nil {
		return fmt.Errorf("could not start a transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.Prepare(insertSQL())
	if err != nil {
		return fmt.Errorf("could not prepare a statement: %w", err)
	}
	defer stmt.Close()

	for _, fp := range g.pending {
		if err = g.insert(stmt, fp); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	g.written += len(g.pending)
	g.pending = g.pending[:0]
	return nil
}

func (g *GeoPackage) insert(stmt *sql.Stmt, fp Footprint) error {
	polygon := fp.Polygon()
	sb, err := gpkg.NewBinary(int32(g.srs.ID), polygon)
	if err != nil {
		return fmt.Errorf("could not create a binary geometry: %w", err)
	}
	if _, err = stmt.Exec(fp.TileID, fp.PointCount, sb); err != nil {
		return fmt.Errorf("could not insert tile %s: %w", fp.TileID, err)
	}
	ext := fp.Extent
	if g.extent == nil {
		g.extent = &ext
	} else {
		g.extent.Add(&ext)
	}
	return nil
}

// Len is the number of footprints committed.
func (g *GeoPackage) Len() int {
	return g.written
}

// Close commits pending footprints and records the table extent.
func (g *GeoPackage) Close() error {
	err := g.flush()
	if err == nil && g.extent != nil {
		err = g.handle.UpdateGeometryExtent(tableName, g.extent)
	}
	return errors.Join(err, g.handle.Close())
}
