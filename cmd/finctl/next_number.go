package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newNextNumberCmd(env *cliEnv) *cobra.Command {
	var companyID string

	cmd := &cobra.Command{
		Use:   "next-number",
		Short: "Allocate the next invoice number of a tenant",
		Long: `Allocate and print the next invoice number of a tenant. The sequence advances,
so the printed number will not be handed out again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(companyID)
			if err != nil {
				return fmt.Errorf("invalid --company %q: %w", companyID, err)
			}

			number, err := env.app.Numbers.Next(cmd.Context(), id)
			if err != nil {
				return err
			}

			env.log.Info("Invoice number allocated", zap.String("company_id", companyID), zap.String("invoice_number", number))
			fmt.Fprintln(cmd.OutOrStdout(), number)
			return nil
		},
	}

	cmd.Flags().StringVar(&companyID, "company", "", "Company ID (required)")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}
