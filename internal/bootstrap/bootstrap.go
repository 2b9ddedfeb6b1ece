// Package bootstrap wires the invoicing engine from configuration. The server
// and invoicectl share it so both run against the same storage, locking and
// event plumbing.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/cache"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/event"
	"github.com/erp/invoicing/internal/infrastructure/migration"
	"github.com/erp/invoicing/internal/infrastructure/persistence"
	"github.com/erp/invoicing/internal/infrastructure/persistence/memory"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Stores is the set of ports the engine runs on, whichever driver backs them
type Stores struct {
	Invoices       invoicing.InvoiceRepository
	Items          invoicing.InvoiceItemRepository
	StockMovements invoicing.StockMovementRepository
	Warranties     invoicing.WarrantyRepository
	Ledger         invoicing.LedgerRepository
	Reconciliation invoicing.ReconciliationLog
	Catalog        invoicing.ProductCatalog
}

// App holds the wired engine and everything that must be closed with it
type App struct {
	Config       *config.Config
	Database     *persistence.Database // nil for the memory driver
	Stores       Stores
	Bus          *event.InMemoryEventBus
	Orchestrator *appinvoicing.Orchestrator
	Queries      *appinvoicing.QueryService
	Importer     *appinvoicing.Importer

	logger  *zap.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// New opens storage, the locker and the event bus and builds the
// orchestrator over them. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	app := &App{Config: cfg, logger: log}

	if err := app.openStores(cfg, log); err != nil {
		_ = app.Close()
		return nil, err
	}

	locker, closeLocker, err := cache.NewInvoiceLocker(ctx, cfg, log)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.addCloser("locker", closeLocker)

	app.Bus = event.NewInMemoryEventBus(log)
	metrics, err := telemetry.NewInvoiceMetrics(otel.GetMeterProvider())
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to create invoice metrics: %w", err)
	}
	metricsHandler := appinvoicing.NewMetricsEventHandler(metrics, log)
	app.Bus.Subscribe(metricsHandler, metricsHandler.EventTypes()...)

	if cfg.Kafka.Enabled {
		forwarder := event.NewKafkaForwarder(event.NewKafkaWriter(cfg.Kafka), cfg.Kafka.Topic, log)
		app.Bus.Subscribe(forwarder, forwarder.EventTypes()...)
		app.addCloser("kafka", forwarder.Close)
		log.Info("Forwarding invoice events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	s := app.Stores
	app.Orchestrator = appinvoicing.NewOrchestrator(appinvoicing.Dependencies{
		Invoices:       s.Invoices,
		Items:          s.Items,
		Stock:          appinvoicing.NewStockLedgerSynchronizer(s.StockMovements, log),
		Warranty:       appinvoicing.NewWarrantyRegistrar(s.Warranties, log),
		Ledger:         appinvoicing.NewAccountsLedgerBridge(s.Ledger, log),
		Reconciliation: s.Reconciliation,
		Catalog:        s.Catalog,
		Numbers:        invoicing.NewTimestampNumberGenerator(cfg.Invoice.NumberPrefix),
		Locker:         locker,
		Publisher:      app.Bus,
		Logger:         log,
	})
	app.Queries = appinvoicing.NewQueryService(s.Invoices, s.StockMovements, s.Warranties, s.Ledger, s.Reconciliation)
	app.Importer = appinvoicing.NewImporter(app.Orchestrator, log)
	return app, nil
}

func (a *App) openStores(cfg *config.Config, log *zap.Logger) error {
	if cfg.Database.Driver == config.DriverMemory {
		store := memory.NewStore()
		a.Stores = Stores{
			Invoices:       store.Invoices(),
			Items:          store.Items(),
			StockMovements: store.StockMovements(),
			Warranties:     store.Warranties(),
			Ledger:         store.Ledger(),
			Reconciliation: store.Reconciliation(),
			Catalog:        store.Catalog(),
		}
		log.Warn("Using the in-memory store; data is lost on exit")
		return nil
	}

	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		return err
	}
	a.Database = db
	a.addCloser("database", db.Close)
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if err := telemetry.InstrumentGorm(db.DB, cfg.Database, cfg.Telemetry, log); err != nil {
		return err
	}
	if err := migrateSchema(db, cfg, log); err != nil {
		return err
	}

	repos := persistence.NewRepositories(db.DB)
	a.Stores = Stores{
		Invoices:       repos.Invoices,
		Items:          repos.Items,
		StockMovements: repos.StockMovements,
		Warranties:     repos.Warranties,
		Ledger:         repos.Ledger,
		Reconciliation: repos.Reconciliation,
		Catalog:        repos.Catalog,
	}
	return nil
}

// migrateSchema applies the embedded SQL migrations on postgres and
// AutoMigrate on sqlite, when database.auto_migrate is set
func migrateSchema(db *persistence.Database, cfg *config.Config, log *zap.Logger) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	if cfg.Database.Driver == config.DriverSQLite {
		if err := db.AutoMigrate(); err != nil {
			return fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
		return nil
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	m, err := migration.New(sqlDB, log)
	if err != nil {
		return err
	}
	// closing the migrator would close the shared sql.DB
	return m.Up()
}

// Catalog returns the GORM catalog, which also supports price upserts.
// It is nil for the memory driver.
func (a *App) Catalog() *persistence.GormProductCatalog {
	c, _ := a.Stores.Catalog.(*persistence.GormProductCatalog)
	return c
}

// Ping reports whether storage is reachable
func (a *App) Ping() error {
	if a.Database == nil {
		return nil
	}
	return a.Database.Ping()
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Close releases everything New opened, in reverse order
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Error("Error closing "+c.name, zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
