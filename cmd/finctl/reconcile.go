package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newReconcileCmd(env *cliEnv) *cobra.Command {
	var companyID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute the status of open invoices",
		Long: `Recompute the status of every UNPAID or OVERDUE invoice from its approved
payments and the current date. Invoices past their due date become OVERDUE.`,
		Example: `  # Every tenant
  finctl reconcile

  # One tenant
  finctl reconcile --company 7d3f1c2e-5b8a-4c1e-9f2d-0a6b4e8c1d3f`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				changed int
				err     error
			)
			if companyID == "" {
				changed, err = env.app.Reconciler.ReconcileAll(cmd.Context())
			} else {
				id, parseErr := uuid.Parse(companyID)
				if parseErr != nil {
					return fmt.Errorf("invalid --company %q: %w", companyID, parseErr)
				}
				changed, err = env.app.Reconciler.ReconcileTenant(cmd.Context(), id)
			}
			if err != nil {
				return err
			}

			env.log.Info("Reconciliation finished", zap.String("company_id", companyID), zap.Int("changed", changed))
			fmt.Fprintf(cmd.OutOrStdout(), "%d invoice(s) changed status\n", changed)
			return nil
		},
	}

	cmd.Flags().StringVar(&companyID, "company", "", "Restrict to one tenant (company ID)")
	return cmd
}
