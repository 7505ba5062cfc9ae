package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"afyaband-ml/internal/ml"
	"afyaband-ml/internal/service"
)

var (
	predictFile   string
	predictModel  string
	predictDevice string

	ensembleFile   string
	ensembleDevice string
)

func newPredictCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Assess readings with a single model",
		Long: `Submit a prediction request to the service and print the assessment.

The request file holds the JSON body of POST /predict: a "readings" array and
an optional "userProfile". Use "-" to read it from stdin.`,
		Args: cobra.NoArgs,
		RunE: predictE,
	}

	cmd.Flags().StringVarP(&predictFile, "file", "f", "-", "Request JSON file, or - for stdin")
	cmd.Flags().StringVarP(&predictModel, "model", "m", "", "Model to use (random_forest or xgboost)")
	cmd.Flags().StringVar(&predictDevice, "device", "", "Device ID recorded with the assessment")

	return cmd
}

func newEnsembleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensemble",
		Short: "Assess readings with every loaded model",
		Args:  cobra.NoArgs,
		RunE:  ensembleE,
	}

	cmd.Flags().StringVarP(&ensembleFile, "file", "f", "-", "Request JSON file, or - for stdin")
	cmd.Flags().StringVar(&ensembleDevice, "device", "", "Device ID recorded with the assessment")

	return cmd
}

func readRequest(cmd *cobra.Command, file, device string) (service.PredictRequest, error) {
	var req service.PredictRequest

	var r io.Reader
	if file == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(file)
		if err != nil {
			return req, fmt.Errorf("opening request file: %w", err)
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, fmt.Errorf("parsing request: %w", err)
	}
	if device != "" {
		req.DeviceID = device
	}
	return req, nil
}

func predictE(cmd *cobra.Command, args []string) error {
	req, err := readRequest(cmd, predictFile, predictDevice)
	if err != nil {
		return err
	}
	if predictModel != "" {
		req.Model = predictModel
	}

	resp, err := newClient().Predict(req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, resp)
	}
	printAssessment(out, resp)
	return nil
}

func ensembleE(cmd *cobra.Command, args []string) error {
	req, err := readRequest(cmd, ensembleFile, ensembleDevice)
	if err != nil {
		return err
	}

	resp, err := newClient().PredictEnsemble(req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, resp)
	}
	printAssessment(out, resp.PredictionResponse)
	for _, name := range ml.ModelNames {
		r, ok := resp.IndividualResults[name]
		switch {
		case !ok:
			continue
		case r.Err != nil:
			printer.Fprintf(out, "  %-14s error: %s\n", name, r.Err)
		case r.Outcome == nil:
			printer.Fprintf(out, "  %-14s no result\n", name)
		case r.Outcome.Probability != nil:
			printer.Fprintf(out, "  %-14s class %d, probability %.3f\n", name, r.Outcome.Class, *r.Outcome.Probability)
		default:
			printer.Fprintf(out, "  %-14s class %d\n", name, r.Outcome.Class)
		}
	}
	return nil
}

func printAssessment(out io.Writer, resp service.PredictionResponse) {
	printer.Fprintf(out, "Status:         %s\n", resp.Status)
	printer.Fprintf(out, "Risk score:     %.1f\n", resp.RiskScore)
	if resp.Confidence != nil {
		printer.Fprintf(out, "Confidence:     %.1f%%\n", *resp.Confidence)
	}
	printer.Fprintf(out, "Model:          %s\n", resp.ModelUsed)
	printer.Fprintf(out, "Summary:        %s\n", resp.Summary)
	printer.Fprintf(out, "Recommendation: %s\n", resp.Recommendation)
	for _, f := range resp.Factors {
		printer.Fprintf(out, "  - %s\n", f)
	}
}
