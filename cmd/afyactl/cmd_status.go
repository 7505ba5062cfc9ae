package main

import (
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service status and loaded models",
		Args:  cobra.NoArgs,
		RunE:  statusE,
	}
}

func statusE(cmd *cobra.Command, args []string) error {
	info, err := newClient().Info()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, info)
	}

	printer.Fprintf(out, "%s %s (%s)\n", info.Service, info.Version, info.Status)
	for _, m := range info.Models {
		state := "not loaded"
		if m.Available {
			state = "loaded"
			if m.Source != "" {
				state += " (" + m.Source + ")"
			}
		}
		printer.Fprintf(out, "  %-14s %s\n", m.Name, state)
	}
	history := "disabled"
	if info.HistoryEnabled {
		history = "enabled"
	}
	printer.Fprintf(out, "History: %s\n", history)
	return nil
}
