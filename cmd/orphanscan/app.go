package main

import (
	"context"
	"fmt"

	_ "orphanscan/internal/db/extractors"

	"orphanscan/internal/db"
	"orphanscan/internal/events"
	"orphanscan/internal/introspect"
	"orphanscan/internal/logger"
	"orphanscan/internal/reconcile"
	"orphanscan/internal/scanner"
	"orphanscan/internal/store"
	"orphanscan/internal/sweeper"
	"orphanscan/pkg/config"
)

// app is every component wired to one database.
type app struct {
	cfg     config.AppConfig
	conn    *db.Conn
	store   *store.Store
	engine  *reconcile.Engine
	sweeper *sweeper.Sweeper
}

// openApp connects to the configured database and makes sure the records
// table exists.
func openApp(ctx context.Context, cfg config.AppConfig) (*app, error) {
	driver, dsn, err := config.BuildDriverAndDSN(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("build dsn: %w", err)
	}
	conn, err := db.Open(driver, dsn, cfg.Database.TimeoutSeconds, cfg.Database.TablePrefix)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", driver, err)
	}
	a := newApp(cfg, conn)
	if err := a.store.EnsureTable(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

func newApp(cfg config.AppConfig, conn *db.Conn) *app {
	st := store.New(conn, cfg.Scan.RecordsTable)
	return &app{
		cfg:     cfg,
		conn:    conn,
		store:   st,
		engine:  reconcile.NewEngine(st, events.LogSink{}),
		sweeper: sweeper.New(st, cfg.Retention.DeletedLifetime),
	}
}

func (a *app) Close() error {
	return a.conn.Close()
}

// declaredSchema reads the schema file when one is configured and the live
// database otherwise.
func (a *app) declaredSchema(ctx context.Context) (introspect.Schema, error) {
	if a.cfg.Scan.SchemaFile != "" {
		logger.Info("reading declared schema from %s", a.cfg.Scan.SchemaFile)
		return introspect.LoadSchemaFile(a.cfg.Scan.SchemaFile)
	}
	return a.conn.Extract(ctx)
}

func (a *app) structure() introspect.Structure {
	st := a.cfg.Scan.Structure
	return introspect.Structure{
		Modules:    st.Modules,
		ModuleLink: st.ModuleLink,
		Sections:   st.Sections,
		Course:     st.Course,
		GradeItems: st.GradeItems,
	}
}

// scanner builds a Scanner from a fresh look at the schema and live tables.
func (a *app) scanner(ctx context.Context) (*scanner.Scanner, error) {
	schema, err := a.declaredSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	in, err := introspect.New(ctx, schema, a.conn, a.structure())
	if err != nil {
		return nil, err
	}
	return scanner.New(in, a.store, scanner.OptionsFromConfig(a.cfg.Scan)), nil
}

// scanAll is the scheduled full scan.
func (a *app) scanAll(ctx context.Context) error {
	s, err := a.scanner(ctx)
	if err != nil {
		return err
	}
	results, err := s.RunAll(ctx)
	found, scanned, skipped, failed := scanner.Summary(results)
	logger.Infof(ctx, "Scanned %d tables (%d skipped, %d failed), %d new orphaned records.", scanned, skipped, failed, found)
	return err
}

// sweep is the scheduled retention sweep.
func (a *app) sweep(ctx context.Context) error {
	_, err := a.sweeper.Sweep(ctx)
	return err
}
