package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"afyaband-ml/internal/features"
)

const inferenceScriptName = "afyaband_inference.py"

// PythonOptions configures how pickle artifacts are executed.
type PythonOptions struct {
	// PythonPath overrides interpreter discovery when set.
	PythonPath string
	// ScriptDir is where the inference script is written; defaults to os.TempDir().
	ScriptDir string
	// Timeout bounds every interpreter call.
	Timeout time.Duration
}

// PythonClassifier runs a pickled scikit-learn/XGBoost model through a Python
// interpreter, one short-lived process per call.
type PythonClassifier struct {
	modelPath  string
	pythonPath string
	scriptPath string
	timeout    time.Duration
	hasProba   bool
}

type inferenceRequest struct {
	Op       string    `json:"op"`
	Features []float64 `json:"features,omitempty"`
}

type inferenceResponse struct {
	Prediction    *int      `json:"prediction,omitempty"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	HasProba      *bool     `json:"has_proba,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// NewPythonClassifier prepares the interpreter and verifies the artifact
// unpickles. It fails when the artifact is missing, no interpreter is found,
// or the artifact cannot be loaded.
func NewPythonClassifier(modelPath string, opts PythonOptions) (*PythonClassifier, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, err
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	pythonPath := opts.PythonPath
	if pythonPath == "" {
		var err error
		pythonPath, err = findPython()
		if err != nil {
			return nil, err
		}
	}

	scriptDir := opts.ScriptDir
	if scriptDir == "" {
		scriptDir = os.TempDir()
	}
	scriptPath := filepath.Join(scriptDir, inferenceScriptName)
	if err := writeInferenceScript(scriptPath); err != nil {
		return nil, fmt.Errorf("failed to create inference script: %w", err)
	}

	c := &PythonClassifier{
		modelPath:  modelPath,
		pythonPath: pythonPath,
		scriptPath: scriptPath,
		timeout:    opts.Timeout,
	}

	resp, err := c.run(inferenceRequest{Op: "inspect"})
	if err != nil {
		return nil, fmt.Errorf("model inspection failed: %w", err)
	}
	c.hasProba = resp.HasProba != nil && *resp.HasProba

	log.Debug().
		Str("model_path", modelPath).
		Str("python_path", pythonPath).
		Bool("has_proba", c.hasProba).
		Msg("Pickle model inspected")

	return c, nil
}

// HasProbability reports whether the artifact exposes predict_proba.
func (c *PythonClassifier) HasProbability() bool {
	return c.hasProba
}

func (c *PythonClassifier) Predict(x features.Vector) (int, error) {
	resp, err := c.run(inferenceRequest{Op: "predict", Features: x.Slice()})
	if err != nil {
		return 0, err
	}
	if resp.Prediction == nil {
		return 0, fmt.Errorf("inference response missing prediction")
	}
	return *resp.Prediction, nil
}

func (c *PythonClassifier) PredictProba(x features.Vector) ([]float64, error) {
	if !c.hasProba {
		return nil, ErrNoProbability
	}
	resp, err := c.run(inferenceRequest{Op: "proba", Features: x.Slice()})
	if err != nil {
		return nil, err
	}
	return resp.Probabilities, nil
}

func (c *PythonClassifier) run(req inferenceRequest) (*inferenceResponse, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.pythonPath, c.scriptPath, c.modelPath)
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %v", ErrInferenceTimeout, c.timeout)
		}

		// the script reports its own failures as JSON before exiting non-zero
		var resp inferenceResponse
		if jsonErr := json.Unmarshal(stdout.Bytes(), &resp); jsonErr == nil && resp.Error != "" {
			return nil, fmt.Errorf("python inference error: %s", resp.Error)
		}

		log.Error().
			Err(err).
			Str("python_path", c.pythonPath).
			Str("script_path", c.scriptPath).
			Str("model_path", c.modelPath).
			Str("op", req.Op).
			Str("stderr", stderr.String()).
			Msg("Python inference execution failed")

		if strings.Contains(stderr.String(), "No module named") {
			return nil, fmt.Errorf("python dependency missing: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("python inference failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	var resp inferenceResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, stdout: %s", err, stdout.String())
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("python inference error: %s", resp.Error)
	}

	return &resp, nil
}

func findPython() (string, error) {
	var candidates []string

	if venvPath := os.Getenv("VIRTUAL_ENV"); venvPath != "" {
		candidates = append(candidates,
			filepath.Join(venvPath, "bin", "python3"),
			filepath.Join(venvPath, "bin", "python"),
			filepath.Join(venvPath, "Scripts", "python.exe"),
		)
	}

	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		for _, root := range []string{execDir, filepath.Dir(execDir)} {
			candidates = append(candidates,
				filepath.Join(root, "venv", "bin", "python3"),
				filepath.Join(root, ".venv", "bin", "python3"),
			)
		}
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil && isPython3(candidate) {
			log.Info().Str("python_path", candidate).Msg("Using virtual environment Python")
			return candidate, nil
		}
	}

	for _, name := range []string{"python3", "python"} {
		path, err := exec.LookPath(name)
		if err == nil && isPython3(path) {
			log.Info().Str("python_path", path).Msg("Using system Python")
			return path, nil
		}
	}

	return "", fmt.Errorf("no suitable Python 3 executable found")
}

func isPython3(path string) bool {
	cmd := exec.Command(path, "-c", "import sys; exit(0 if sys.version_info[0] == 3 else 1)")
	return cmd.Run() == nil
}

func writeInferenceScript(scriptPath string) error {
	if existing, err := os.ReadFile(scriptPath); err == nil && string(existing) == inferenceScript {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(scriptPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(scriptPath, []byte(inferenceScript), 0o755)
}

const inferenceScript = `#!/usr/bin/env python3
"""
AfyaBand pickle inference script.
Reads {"op": ..., "features": [...]} from stdin and writes a JSON response.
"""
import json
import pickle
import sys


def main():
    if len(sys.argv) != 2:
        print(json.dumps({"error": "usage: afyaband_inference.py <model_path>"}))
        sys.exit(1)

    try:
        request = json.load(sys.stdin)
        with open(sys.argv[1], "rb") as f:
            model = pickle.load(f)

        op = request.get("op", "predict")
        if op == "inspect":
            print(json.dumps({"has_proba": hasattr(model, "predict_proba")}))
            return

        import numpy as np
        features = np.array([request["features"]], dtype=float)

        if op == "predict":
            print(json.dumps({"prediction": int(model.predict(features)[0])}))
        elif op == "proba":
            proba = model.predict_proba(features)[0]
            print(json.dumps({"probabilities": [float(p) for p in proba]}))
        else:
            raise ValueError("unknown op: %s" % op)
    except Exception as e:
        print(json.dumps({"error": str(e)}))
        sys.exit(1)


if __name__ == "__main__":
    main()
`
