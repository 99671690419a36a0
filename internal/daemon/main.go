// Package daemon wires the configuration into the database, the directory
// connector and the sync orchestrator.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cybercore/ldap-sync/internal/config"
	"github.com/cybercore/ldap-sync/internal/cursor"
	"github.com/cybercore/ldap-sync/internal/db/controller/user"
	"github.com/cybercore/ldap-sync/internal/db/dsn"
	"github.com/cybercore/ldap-sync/internal/db/models"
	"github.com/cybercore/ldap-sync/internal/directory"
	zgorm "github.com/cybercore/ldap-sync/internal/logger/adapter/gormlogger"
	"github.com/cybercore/ldap-sync/internal/metrics"
	"github.com/cybercore/ldap-sync/internal/schema"
	"github.com/cybercore/ldap-sync/internal/syncer"
)

// ErrConfigNil is returned by New without a configuration.
var ErrConfigNil = errors.New("config is nil")

// DryRunSuffix is appended to the cursor file names in dry-run mode.
const DryRunSuffix = ".dryrun"

// Daemon represents the sync service.
type Daemon struct {
	cfg       *config.Config
	db        *gorm.DB
	cursors   *cursor.Store
	connector directory.Connector
	vendor    schema.Vendor
}

// New opens and migrates the database and builds the directory connector.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	db, err := OpenDB(&cfg.DB)
	if err != nil {
		return nil, err
	}

	if cfg.DB.AutoMigrate {
		if err = Migrate(db); err != nil {
			return nil, err
		}
	}

	connector, vendor, err := NewConnector(cfg)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		cfg:       cfg,
		db:        db,
		cursors:   NewCursorStore(cfg),
		connector: connector,
		vendor:    vendor,
	}, nil
}

// NewCursorStore returns the cursor store for cfg. Dry runs read and write
// the configured paths with DryRunSuffix appended.
func NewCursorStore(cfg *config.Config) *cursor.Store {
	if cfg.DryRun {
		return cursor.New(cfg.Sync.StateFile+DryRunSuffix, cfg.Sync.CookieFile+DryRunSuffix)
	}

	return cursor.New(cfg.Sync.StateFile, cfg.Sync.CookieFile)
}

// DB returns the database handle.
func (d *Daemon) DB() *gorm.DB {
	return d.db
}

// Start runs the sync loop until ctx is canceled, or a single iteration when once is set.
// The cursor directory is locked for the lifetime of the call.
func (d *Daemon) Start(ctx context.Context, once bool) error {
	if err := d.cursors.Lock(); err != nil {
		return err
	}

	defer func() {
		if err := d.cursors.Unlock(); err != nil {
			log.Warn().Err(err).Msg("failed to release cursor lock")
		}
	}()

	if d.cfg.Metrics.Listen != "" {
		if _, _, err := metrics.Serve(ctx, d.cfg.Metrics.Listen, d.cfg.Metrics.Path); err != nil {
			return fmt.Errorf("failed to start metrics endpoint: %w", err)
		}
	}

	upserter, err := user.New(d.db)
	if err != nil {
		return err
	}

	orchestrator, err := syncer.New(d.connector, d.vendor, d.cursors, upserter, d.cfg.Sync, syncer.WithStateDB(d.db))
	if err != nil {
		return err
	}

	log.Info().
		Bool("dryRun", d.cfg.DryRun).
		Bool("once", once).
		Str("vendor", string(d.vendor)).
		Str("engine", d.cfg.DB.GormEngine).
		Msg("starting ldap sync")

	if !once {
		return orchestrator.Run(ctx)
	}

	defer orchestrator.Close()

	report, err := orchestrator.RunOnce(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Int("fetched", report.Fetched).
		Int("processed", report.Processed).
		Int("skipped", report.Skipped).
		Msg("single iteration finished")

	return nil
}

// Close closes the database pool.
func (d *Daemon) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// OpenDB opens the configured database with gorm logging routed through zerolog.
func OpenDB(cfg *config.DB) (*gorm.DB, error) {
	dialector, err := dsn.Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: zgorm.New().LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	return db, nil
}

// Migrate creates or updates the users and sync state tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.SyncState{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// NewConnector returns the scripted fixture in dry-run mode and the LDAP client otherwise,
// together with the configured vendor.
func NewConnector(cfg *config.Config) (directory.Connector, schema.Vendor, error) {
	if cfg.DryRun {
		fixture := directory.NewFixture()

		log.Warn().Msg("dry-run mode, using the scripted directory fixture")

		return fixture, fixture.Vendor(), nil
	}

	vendor, err := schema.ParseVendor(cfg.Directory.Type)
	if err != nil {
		return nil, "", err
	}

	auth := schema.AuthAuto
	if vendor != schema.VendorAuto {
		auth = schema.MustLookup(vendor).AuthMethod
	}

	return directory.NewClient(cfg.Directory, directory.WithAuthMethod(auth)), vendor, nil
}

// Detect connects once and classifies the server from its root DSE.
func Detect(ctx context.Context, connector directory.Connector) (schema.Vendor, error) {
	session, err := connector.Connect(ctx)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = session.Close()
	}()

	rootDSE, err := session.RootDSE(ctx)
	if err != nil {
		return "", err
	}

	return schema.Detect(rootDSE), nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
