package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/csvimport"
	"github.com/spf13/cobra"
)

// jsonDraft is one element of a JSON import file: the HTTP create body plus
// an optional ref used in the report
type jsonDraft struct {
	Ref string `json:"ref"`
	appinvoicing.InvoiceRequest
}

type importOutput struct {
	appinvoicing.ImportReport
	RowErrors []csvimport.RowError `json:"row_errors,omitempty"`
}

func newImportCmd(s *session) *cobra.Command {
	var (
		file      string
		format    string
		delimiter string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create invoices from a JSON or CSV file",
		Long: `Import creates each invoice through the same lifecycle as the API, one at a
time. A failed invoice does not stop the batch.

JSON files hold an array of create bodies, each with an optional "ref".
CSV files hold one item per row, grouped into invoices by invoice_ref.`,
		Example: `  invoicectl import --file drafts.json
  invoicectl import --file drafts.csv --tenant 6f1c...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format == "" {
				format = strings.TrimPrefix(strings.ToLower(filepath.Ext(file)), ".")
			}
			entries, rowErrors, err := readImportFile(file, format, delimiter)
			if err != nil {
				return err
			}

			if err := s.open(cmd); err != nil {
				return err
			}
			defer s.close()
			tenantID, err := s.tenantID()
			if err != nil {
				return err
			}

			report := s.app.Importer.Import(cmd.Context(), tenantID, entries)
			if err := s.printJSON(importOutput{ImportReport: report, RowErrors: rowErrors}); err != nil {
				return err
			}
			if report.Failed > 0 || len(rowErrors) > 0 {
				return fmt.Errorf("%d invoice(s) failed, %d row error(s)", report.Failed, len(rowErrors))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Import file")
	cmd.Flags().StringVar(&format, "format", "", "json or csv (default: from the file extension)")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "CSV field delimiter")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readImportFile(path, format, delimiter string) ([]appinvoicing.ImportEntry, []csvimport.RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	switch format {
	case "json":
		var drafts []jsonDraft
		if err := json.NewDecoder(f).Decode(&drafts); err != nil {
			return nil, nil, fmt.Errorf("invalid JSON import file: %w", err)
		}
		entries := make([]appinvoicing.ImportEntry, len(drafts))
		for i, d := range drafts {
			ref := d.Ref
			if ref == "" {
				ref = fmt.Sprintf("#%d", i+1)
			}
			entries[i] = appinvoicing.ImportEntry{Ref: ref, Draft: d.ToDraft()}
		}
		return entries, nil, nil

	case "csv":
		r, size := utf8.DecodeRuneInString(delimiter)
		if size == 0 || size != len(delimiter) {
			return nil, nil, fmt.Errorf("delimiter must be a single character, got %q", delimiter)
		}
		drafts, rowErrors, err := csvimport.ReadDrafts(f, csvimport.WithDelimiter(r))
		if err != nil {
			return nil, nil, err
		}
		entries := make([]appinvoicing.ImportEntry, len(drafts))
		for i, d := range drafts {
			entries[i] = appinvoicing.ImportEntry{Ref: d.Ref, Draft: d.Draft}
		}
		return entries, rowErrors, nil

	default:
		return nil, nil, fmt.Errorf("unsupported import format %q (use json or csv)", format)
	}
}
