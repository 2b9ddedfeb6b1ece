package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newCatalogCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Maintain the prices used for items without a unit price",
	}
	cmd.AddCommand(newSetPriceCmd(s))
	return cmd
}

func newSetPriceCmd(s *session) *cobra.Command {
	var (
		product    string
		variant    string
		name       string
		price      string
		adjustment string
	)

	cmd := &cobra.Command{
		Use:   "set-price",
		Short: "Create or update a product price or a variant adjustment",
		Example: `  invoicectl catalog set-price --product 3d1a... --name "Phone X" --price 499.00
  invoicectl catalog set-price --product 3d1a... --variant 9c0e... --name 256GB --adjustment 80`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			productID, err := uuid.Parse(product)
			if err != nil {
				return fmt.Errorf("invalid product id %q: %w", product, err)
			}

			if err := s.open(cmd); err != nil {
				return err
			}
			defer s.close()

			catalog := s.app.Catalog()
			if catalog == nil {
				return fmt.Errorf("catalog prices need a persistent database; database.driver is %q", s.cfg.Database.Driver)
			}
			tenantID, err := s.tenantID()
			if err != nil {
				return err
			}

			if variant == "" {
				amount, err := parseAmount("price", price)
				if err != nil {
					return err
				}
				if amount.IsNegative() {
					return fmt.Errorf("--price cannot be negative")
				}
				if err := catalog.UpsertProduct(cmd.Context(), tenantID, productID, name, amount); err != nil {
					return err
				}
				fmt.Fprintf(s.out, "product %s priced at %s\n", productID, amount)
				return nil
			}

			variantID, err := uuid.Parse(variant)
			if err != nil {
				return fmt.Errorf("invalid variant id %q: %w", variant, err)
			}
			amount, err := parseAmount("adjustment", adjustment)
			if err != nil {
				return err
			}
			if err := catalog.UpsertVariant(cmd.Context(), tenantID, productID, variantID, name, amount); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "variant %s of product %s adjusted by %s\n", variantID, productID, amount)
			return nil
		},
	}

	cmd.Flags().StringVar(&product, "product", "", "Product ID")
	cmd.Flags().StringVar(&variant, "variant", "", "Variant ID; sets the adjustment instead of the price")
	cmd.Flags().StringVar(&name, "name", "", "Product or variant name")
	cmd.Flags().StringVar(&price, "price", "", "Product list price")
	cmd.Flags().StringVar(&adjustment, "adjustment", "", "Variant price adjustment, may be negative")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

func parseAmount(flag, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, fmt.Errorf("--%s is required", flag)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", flag, raw, err)
	}
	return d, nil
}
