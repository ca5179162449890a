// Package store provides read-only access to the map entities this service
// consumes: locations for endpoint resolution and connections for the
// internal graph engine. Writes belong to the surrounding CRUD application.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusmap/routegate/internal/graph"
	"github.com/campusmap/routegate/internal/routing"
)

// Repository reads locations and connections from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New wraps a pgx pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Location fetches one location by id. Returns (nil, nil) when absent.
func (r *Repository) Location(ctx context.Context, id int64) (*routing.Location, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, latitude, longitude FROM locations WHERE id = $1`, id)

	var loc routing.Location
	if err := row.Scan(&loc.ID, &loc.Name, &loc.Lat, &loc.Lng); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: location %d: %w", id, err)
	}
	return &loc, nil
}

// ListLocations fetches all locations, keyed by id.
func (r *Repository) ListLocations(ctx context.Context) (map[int64]routing.Location, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, latitude, longitude FROM locations`)
	if err != nil {
		return nil, fmt.Errorf("store: list locations: %w", err)
	}
	defer rows.Close()

	locations := make(map[int64]routing.Location)
	for rows.Next() {
		var loc routing.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Lat, &loc.Lng); err != nil {
			return nil, fmt.Errorf("store: scan location: %w", err)
		}
		locations[loc.ID] = loc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list locations: %w", err)
	}
	return locations, nil
}

// ListConnections fetches all directed connection records.
func (r *Repository) ListConnections(ctx context.Context) ([]graph.Connection, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT origin_id, destination_id, weight FROM connections`)
	if err != nil {
		return nil, fmt.Errorf("store: list connections: %w", err)
	}
	defer rows.Close()

	var connections []graph.Connection
	for rows.Next() {
		var c graph.Connection
		if err := rows.Scan(&c.FromID, &c.ToID, &c.Weight); err != nil {
			return nil, fmt.Errorf("store: scan connection: %w", err)
		}
		connections = append(connections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list connections: %w", err)
	}
	return connections, nil
}
