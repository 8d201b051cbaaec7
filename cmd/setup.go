package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wsp-sniper/config"
	"wsp-sniper/selection"
	"wsp-sniper/timing"
)

func newSetupCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a .env file with credentials and the start time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			p := selection.NewPrompter(cmd.InOrStdin(), out)

			if _, err := os.Stat(output); err == nil {
				ok, err := p.Confirm(fmt.Sprintf("'%s' already exists. Overwrite it?", output))
				if err != nil || !ok {
					return err
				}
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}

			fmt.Fprintln(out, selection.Banner("First run setup"))
			s, err := askSetup(p, out)
			if err != nil {
				return err
			}
			if err := config.WriteEnvFile(output, s); err != nil {
				return err
			}
			fmt.Fprintln(out, color.GreenString("[✓] Configuration saved to '%s'.", output))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", config.DefaultEnvFile, "File to write")
	return cmd
}

func askSetup(p *selection.Prompter, out io.Writer) (config.Setup, error) {
	var (
		s   config.Setup
		err error
	)
	if s.Username, err = p.Ask("Username", nil); err != nil {
		return s, err
	}
	if s.Password, err = p.Ask("Password", nil); err != nil {
		return s, err
	}
	for {
		s.DesiredTimeLocal, err = p.AskDefault("Registration start time, HH:MM:SS[.ffffff]", "10:00:00.000000")
		if err != nil {
			return s, err
		}
		if _, perr := timing.ParseTimeOfDay(s.DesiredTimeLocal); perr == nil {
			return s, nil
		}
		fmt.Fprintln(out, color.RedString("Invalid time format."))
	}
}
