package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"afyaband-ml/internal/client"
	"afyaband-ml/internal/common"
)

const envServerURL = "AFYABAND_URL"

var (
	serverURL  string
	timeout    time.Duration
	jsonOutput bool
)

var printer = message.NewPrinter(language.English)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "afyactl",
		Short: "afyactl - command line client for the AfyaBand ML service",
		Long: `afyactl talks to a running AfyaBand ML prediction service.

It can report which models are loaded, submit readings for a single-model
or ensemble assessment, list a device's assessment history, and export the
local feature store as CSV for retraining.`,
		Version:      common.ServiceVersion,
		SilenceUsage: true,
	}

	defaultURL := os.Getenv(envServerURL)
	if defaultURL == "" {
		defaultURL = "http://localhost:8000"
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "Service base URL (env "+envServerURL+")")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON responses")

	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newPredictCommand())
	cmd.AddCommand(newEnsembleCommand())
	cmd.AddCommand(newHistoryCommand())
	cmd.AddCommand(newExportCommand())

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}

func newClient() *client.Client {
	return client.New(serverURL, timeout)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
