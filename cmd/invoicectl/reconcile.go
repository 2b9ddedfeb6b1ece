package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/scheduler"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newReconcileCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Review and retry reconciliation gaps",
		Long: `A reconciliation gap is a stock, warranty or ledger stage that failed after
its invoice was saved. The invoice stands; the stage is retried here, by the
API, or by the background sweeper.`,
	}
	cmd.AddCommand(newReconcileListCmd(s), newReconcileRetryCmd(s))
	return cmd
}

func newReconcileListCmd(s *session) *cobra.Command {
	var (
		page     int
		pageSize int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tenant's open gaps, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.open(cmd); err != nil {
				return err
			}
			defer s.close()
			tenantID, err := s.tenantID()
			if err != nil {
				return err
			}

			gaps, err := s.app.Queries.OpenGaps(cmd.Context(), tenantID, shared.Filter{Page: page, PageSize: pageSize})
			if err != nil {
				return err
			}
			if asJSON {
				return s.printJSON(gaps)
			}
			if len(gaps) == 0 {
				fmt.Fprintln(s.out, "No open reconciliation gaps")
				return nil
			}

			w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INVOICE\tNUMBER\tSTAGE\tOPERATION\tATTEMPTS\tDETECTED\tREASON")
			for _, g := range gaps {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					g.InvoiceID, g.InvoiceNumber, g.Stage, g.Operation, g.Attempts,
					g.DetectedAt.Format(time.RFC3339), g.Reason)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "Gaps per page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newReconcileRetryCmd(s *session) *cobra.Command {
	var (
		invoice string
		stage   string
	)

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-run failed stages",
		Long: `With --invoice and --stage, re-run that one stage of that invoice in the
selected tenant. Without them, sweep every open gap of every tenant once.`,
		Example: `  invoicectl reconcile retry
  invoicectl reconcile retry --invoice 0b7e... --stage ledger`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (invoice == "") != (stage == "") {
				return fmt.Errorf("--invoice and --stage must be given together")
			}
			var (
				invoiceID uuid.UUID
				err       error
			)
			if invoice != "" {
				if invoiceID, err = uuid.Parse(invoice); err != nil {
					return fmt.Errorf("invalid invoice id %q: %w", invoice, err)
				}
				if !invoicing.Stage(stage).IsValid() {
					return fmt.Errorf("invalid stage %q", stage)
				}
			}

			if err := s.open(cmd); err != nil {
				return err
			}
			defer s.close()

			if invoice == "" {
				sweeper := scheduler.NewReconciliationSweeper(s.app.Stores.Reconciliation, s.app.Orchestrator, s.cfg.Scheduler, s.log)
				result, err := sweeper.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				if err := s.printJSON(result); err != nil {
					return err
				}
				if result.Failed > 0 {
					return fmt.Errorf("%d of %d gap(s) still failing", result.Failed, result.Attempted)
				}
				return nil
			}

			tenantID, err := s.tenantID()
			if err != nil {
				return err
			}
			outcome, err := s.app.Orchestrator.Reconcile(cmd.Context(), tenantID, invoiceID, invoicing.Stage(stage))
			if err != nil {
				return err
			}
			return s.printJSON(appinvoicing.ToOutcomeResponse(outcome))
		},
	}

	cmd.Flags().StringVar(&invoice, "invoice", "", "Invoice ID")
	cmd.Flags().StringVar(&stage, "stage", "", "Stage to re-run (stock, warranty, ledger)")
	return cmd
}
