// Package app assembles a ready-to-use engine from a workspace
// directory. The CLI and the server share this bootstrap.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"wayfinder/internal/config"
	"wayfinder/internal/db"
	"wayfinder/internal/engine"
	"wayfinder/internal/migrate"
)

// Context bundles everything opened during bootstrap.
type Context struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    *engine.Engine
}

// Close releases the database handle.
func (c *Context) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Open prepares the workspace, runs migrations, loads the config and
// restores persisted algorithms into the engine.
func Open(ctx context.Context, workspace string) (*Context, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, fmt.Errorf("ensure workspace: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	if err := eng.Restore(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return &Context{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Engine:    eng,
	}, nil
}
