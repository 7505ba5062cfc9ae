package main

import (
	"time"

	"github.com/spf13/cobra"

	"afyaband-ml/internal/storage"
)

var (
	historyDevice string
	historyLimit  int
	historySince  time.Duration
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a device's recent assessments",
		Args:  cobra.NoArgs,
		RunE:  historyE,
	}

	cmd.Flags().StringVar(&historyDevice, "device", "", "Device ID (defaults to the anonymous device)")
	cmd.Flags().IntVar(&historyLimit, "limit", 0, "Maximum number of records (0 for the server default)")
	cmd.Flags().DurationVar(&historySince, "since", 0, "Only assessments from this long ago onwards, oldest first (e.g. 24h)")

	return cmd
}

func historyE(cmd *cobra.Command, args []string) error {
	var (
		records []storage.AssessmentRecord
		err     error
	)
	if historySince > 0 {
		records, err = newClient().HistoryRange(historyDevice, time.Now().Add(-historySince), time.Time{}, historyLimit)
	} else {
		records, err = newClient().History(historyDevice, historyLimit)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, records)
	}

	if len(records) == 0 {
		printer.Fprintln(out, "No assessments recorded")
		return nil
	}
	for _, r := range records {
		printer.Fprintf(out, "%s  %-8s %6.1f  %-14s %s\n",
			r.Timestamp.Local().Format(time.DateTime), r.Status, r.RiskScore, r.Model, r.Source)
	}
	printer.Fprintf(out, "%d assessments\n", len(records))
	return nil
}
