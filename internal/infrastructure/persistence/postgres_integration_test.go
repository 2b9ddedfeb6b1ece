//go:build integration

package persistence

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/migration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

// setupPostgres starts a throwaway postgres, applies the embedded migrations
// and returns repositories over it
func setupPostgres(t *testing.T) *Repositories {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("invoicing_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	db, err := NewDatabase(&config.DatabaseConfig{
		Driver:       config.DriverPostgres,
		Host:         host,
		Port:         portNum,
		User:         "postgres",
		Password:     "postgres",
		DBName:       "invoicing_test",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		LogLevel:     "warn",
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	m, err := migration.New(sqlDB, log)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	version, dirty, err := m.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.NotZero(t, version)

	return NewRepositories(db.DB)
}

func TestPostgresSchema(t *testing.T) {
	repos := setupPostgres(t)
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("invoice number unique per tenant", func(t *testing.T) {
		saveInvoice(t, repos, newTestInvoice(t, tenantID, "PG-1"))

		err := repos.Invoices.Create(ctx, newTestInvoice(t, tenantID, "PG-1"))
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)

		// same number in another tenant is fine
		saveInvoice(t, repos, newTestInvoice(t, uuid.New(), "PG-1"))
	})

	t.Run("stale version rejected", func(t *testing.T) {
		inv := newTestInvoice(t, tenantID, "PG-2")
		saveInvoice(t, repos, inv)

		first, err := repos.Invoices.FindByIDForTenant(ctx, tenantID, inv.ID)
		require.NoError(t, err)
		second, err := repos.Invoices.FindByIDForTenant(ctx, tenantID, inv.ID)
		require.NoError(t, err)

		first.Notes = "first writer"
		require.NoError(t, repos.Invoices.Update(ctx, first))

		second.Notes = "second writer"
		assert.ErrorIs(t, repos.Invoices.Update(ctx, second), shared.ErrConcurrencyConflict)
	})

	t.Run("ledger keeps one active entry across payments", func(t *testing.T) {
		inv := newTestInvoice(t, tenantID, "PG-3")
		saveInvoice(t, repos, inv)

		state, err := repos.Ledger.LoadState(ctx, tenantID, inv.ID)
		require.NoError(t, err)
		require.NoError(t, repos.Ledger.Apply(ctx, invoicing.PlanLedger(inv, state, "")))

		for _, amount := range []string{"100", "200"} {
			require.NoError(t, inv.RecordPayment(dec(amount), "cash"))
			state, err = repos.Ledger.LoadState(ctx, tenantID, inv.ID)
			require.NoError(t, err)
			require.NoError(t, repos.Ledger.Apply(ctx, invoicing.PlanLedger(inv, state, "cash")))
		}

		state, err = repos.Ledger.LoadState(ctx, tenantID, inv.ID)
		require.NoError(t, err)
		require.NotNil(t, state.Active)
		assert.Equal(t, invoicing.LedgerEntrySettled, state.Active.EntryType)
		assert.True(t, state.PaymentsTotal.Equal(dec("300")))

		entries, err := repos.Ledger.FindEntriesByInvoice(ctx, tenantID, inv.ID)
		require.NoError(t, err)
		active := 0
		for _, e := range entries {
			if e.Status == invoicing.LedgerStatusActive {
				active++
			}
		}
		assert.Equal(t, 1, active)
	})

	t.Run("stock returns to zero after reversal", func(t *testing.T) {
		inv := newTestInvoice(t, tenantID, "PG-4")
		saveInvoice(t, repos, inv)
		productID := inv.Items[0].ProductID

		require.NoError(t, repos.StockMovements.ReplaceByReference(ctx, tenantID, inv.InvoiceNumber,
			invoicing.PlanMovements(inv, invoicing.SyncModeCreate)))
		onHand, err := repos.StockMovements.OnHand(ctx, tenantID, productID)
		require.NoError(t, err)
		assert.True(t, onHand.Equal(dec("-2")))

		require.NoError(t, repos.StockMovements.ReplaceByReference(ctx, tenantID, inv.InvoiceNumber,
			invoicing.PlanMovements(inv, invoicing.SyncModeReverse)))
		onHand, err = repos.StockMovements.OnHand(ctx, tenantID, productID)
		require.NoError(t, err)
		assert.True(t, onHand.IsZero())
	})

	t.Run("one open gap per stage", func(t *testing.T) {
		inv := newTestInvoice(t, tenantID, "PG-5")
		saveInvoice(t, repos, inv)

		for i := 0; i < 3; i++ {
			require.NoError(t, repos.Reconciliation.Record(ctx,
				invoicing.NewReconciliationGap(inv, invoicing.StageWarranty, "update", assert.AnError)))
		}
		gaps, err := repos.Reconciliation.FindOpenByInvoice(ctx, tenantID, inv.ID)
		require.NoError(t, err)
		require.Len(t, gaps, 1)
		assert.Equal(t, 3, gaps[0].Attempts)

		require.NoError(t, repos.Reconciliation.ResolveStage(ctx, tenantID, inv.ID, invoicing.StageWarranty))
		gaps, err = repos.Reconciliation.FindOpenByInvoice(ctx, tenantID, inv.ID)
		require.NoError(t, err)
		assert.Empty(t, gaps)
	})
}
