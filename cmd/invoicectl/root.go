package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/erp/invoicing/internal/bootstrap"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// session is the state shared by every subcommand of one invocation
type session struct {
	out        io.Writer
	configPath string
	tenant     string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
	app *bootstrap.App
}

func newRootCmd(out io.Writer) *cobra.Command {
	s := &session{out: out}

	root := &cobra.Command{
		Use:   "invoicectl",
		Short: "Operate the invoicing engine from the command line",
		Long: `invoicectl runs batch imports, reviews and retries reconciliation gaps,
and maintains catalog prices against the database configured in config.toml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&s.configPath, "config", "", "Path to config.toml (default: search ., ./config, /etc/invoicing)")
	flags.StringVar(&s.tenant, "tenant", "", "Tenant ID (default: app.default_tenant)")
	flags.StringVar(&s.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newImportCmd(s),
		newReconcileCmd(s),
		newCatalogCmd(s),
	)
	return root
}

// open loads configuration and wires the engine. Commands call it from
// RunE and defer close.
func (s *session) open(cmd *cobra.Command) error {
	cfg, err := config.LoadFrom(s.configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(&logger.Config{
		Level:  s.logLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app, err := bootstrap.New(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	s.cfg, s.log, s.app = cfg, log, app
	return nil
}

func (s *session) close() {
	if s.app != nil {
		_ = s.app.Close()
	}
	if s.log != nil {
		_ = logger.Sync(s.log)
	}
}

func (s *session) tenantID() (uuid.UUID, error) {
	raw := s.tenant
	if raw == "" {
		raw = s.cfg.App.DefaultTenant
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant %q: %w", raw, err)
	}
	return id, nil
}

func (s *session) printJSON(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
