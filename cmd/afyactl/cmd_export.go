package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"afyaband-ml/internal/storage"
)

var (
	exportDataPath string
	exportOut      string
	exportDevice   string
	exportSince    time.Duration
)

func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored feature records as CSV",
		Long: `Export every stored feature record from a local history database as CSV.

The database is opened directly, so the service must not be holding it open.
Columns follow the model input order so the file can feed retraining.`,
		Args: cobra.NoArgs,
		RunE: exportE,
	}

	cmd.Flags().StringVar(&exportDataPath, "data", os.Getenv("DATA_PATH"), "History data directory (env DATA_PATH)")
	cmd.Flags().StringVarP(&exportOut, "out", "o", "-", "Output file, or - for stdout")
	cmd.Flags().StringVar(&exportDevice, "device", "", "Export only this device's records")
	cmd.Flags().DurationVar(&exportSince, "since", 0, "With --device, only records from this long ago onwards")

	return cmd
}

func exportE(cmd *cobra.Command, args []string) error {
	if exportDataPath == "" {
		return fmt.Errorf("--data is required")
	}
	if exportSince > 0 && exportDevice == "" {
		return fmt.Errorf("--since requires --device")
	}
	if _, err := os.Stat(exportDataPath); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}

	store, err := storage.New(exportDataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "-" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	var rows int
	if exportDevice != "" {
		from := time.Unix(0, 0)
		if exportSince > 0 {
			from = time.Now().Add(-exportSince)
		}
		var records []storage.FeatureRecord
		records, err = store.GetFeaturesInRange(exportDevice, from, time.Now())
		if err != nil {
			return fmt.Errorf("reading features: %w", err)
		}
		rows, err = storage.WriteFeaturesCSV(w, records)
	} else {
		rows, err = store.ExportFeaturesCSV(w)
	}
	if err != nil {
		return fmt.Errorf("exporting features: %w", err)
	}

	if exportOut != "-" {
		printer.Fprintf(cmd.ErrOrStderr(), "Exported %d feature records to %s\n", rows, exportOut)
	}
	return nil
}
