package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"wsp-sniper/plan"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect or remove the saved plan",
	}
	cmd.PersistentFlags().String("plan-file", "", "Saved plan location")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			p, err := plan.Load(e.cfg.PlanFile)
			if err != nil {
				return err
			}
			if p.Len() == 0 {
				fmt.Fprintf(e.out, "No saved plan in '%s'.\n", e.cfg.PlanFile)
				return nil
			}
			e.printPlan(p)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the saved plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if err := plan.Remove(e.cfg.PlanFile); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Removed '%s'.\n", e.cfg.PlanFile)
			return nil
		},
	})
	return cmd
}
