package cmd

import (
	"github.com/spf13/cobra"
)

func newSelectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Choose lesson sections for every subject and save the plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.cfg.RequireCredentials(); err != nil {
				return err
			}
			c, _, err := e.openClient()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			subjects, err := e.signIn(ctx, c)
			if err != nil {
				return err
			}
			if len(subjects) == 0 {
				e.log.Warn().Msg("no subjects found in accruals")
				return nil
			}

			p, err := e.selectPlan(ctx, c, e.prompt(), subjects)
			if err != nil {
				return err
			}
			if p.Len() == 0 {
				e.log.Warn().Msg("no lessons selected, plan not saved")
				return nil
			}
			e.printPlan(p)
			return nil
		},
	}
	addNetworkFlags(cmd)
	cmd.Flags().String("plan-file", "", "Saved plan location")
	return cmd
}
