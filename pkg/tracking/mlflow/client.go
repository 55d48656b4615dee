// Copyright 2025 The Pipeflow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mlflow is a minimal client for the MLflow tracking REST API,
// used by the synthesized experiment-init task at execution time. The
// compiler itself never calls it.
package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// EnsureOutcome classifies the result of EnsureExperiment. Transient
// failures are not an outcome: they surface as errors and are the only
// condition the init task treats as fatal.
type EnsureOutcome int

const (
	// OutcomeCreated means the experiment did not exist and was created.
	OutcomeCreated EnsureOutcome = iota
	// OutcomeAlreadyExists means the experiment was already there, either
	// before the call or created concurrently by another submission.
	OutcomeAlreadyExists
)

// String returns a human-readable string for the outcome.
func (o EnsureOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "Created"
	case OutcomeAlreadyExists:
		return "AlreadyExists"
	default:
		return "Unknown"
	}
}

// Client talks to one MLflow tracking server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client for the tracking server at baseURL. A nil
// httpClient gets a default with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type apiError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

const (
	codeResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	codeResourceDoesNotExist  = "RESOURCE_DOES_NOT_EXIST"
)

// EnsureExperiment makes sure an experiment with the given name exists and
// returns its ID. The check-then-create is tolerant of concurrent
// submissions: a create that loses the race reports OutcomeAlreadyExists,
// not an error.
func (c *Client) EnsureExperiment(ctx context.Context, name string) (string, EnsureOutcome, error) {
	if id, err := c.getExperiment(ctx, name); err == nil {
		return id, OutcomeAlreadyExists, nil
	} else if !isDoesNotExist(err) {
		return "", 0, fmt.Errorf("looking up experiment %q: %w", name, err)
	}

	id, err := c.createExperiment(ctx, name)
	if err == nil {
		return id, OutcomeCreated, nil
	}
	if !isAlreadyExists(err) {
		return "", 0, fmt.Errorf("creating experiment %q: %w", name, err)
	}

	// Lost the creation race; the winner's experiment is the one we want.
	id, err = c.getExperiment(ctx, name)
	if err != nil {
		return "", 0, fmt.Errorf("looking up experiment %q after losing creation race: %w", name, err)
	}
	return id, OutcomeAlreadyExists, nil
}

// StartRun opens a new run under the experiment and returns its run ID.
func (c *Client) StartRun(ctx context.Context, experimentID, runName string) (string, error) {
	payload := map[string]any{
		"experiment_id": experimentID,
		"run_name":      runName,
		"start_time":    time.Now().UnixMilli(),
	}
	var out struct {
		Run struct {
			Info struct {
				RunID string `json:"run_id"`
			} `json:"info"`
		} `json:"run"`
	}
	if err := c.post(ctx, "/api/2.0/mlflow/runs/create", payload, &out); err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}
	if out.Run.Info.RunID == "" {
		return "", fmt.Errorf("tracking server returned an empty run id")
	}
	return out.Run.Info.RunID, nil
}

func (c *Client) getExperiment(ctx context.Context, name string) (string, error) {
	endpoint := c.baseURL + "/api/2.0/mlflow/experiments/get-by-name?experiment_name=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.Experiment.ExperimentID, nil
}

func (c *Client) createExperiment(ctx context.Context, name string) (string, error) {
	var out struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := c.post(ctx, "/api/2.0/mlflow/experiments/create", map[string]any{"name": name}, &out); err != nil {
		return "", err
	}
	return out.ExperimentID, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.ErrorCode != "" {
			return &apiErr
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
}

func isAlreadyExists(err error) bool {
	apiErr, ok := err.(*apiError)
	return ok && apiErr.ErrorCode == codeResourceAlreadyExists
}

func isDoesNotExist(err error) bool {
	apiErr, ok := err.(*apiError)
	return ok && apiErr.ErrorCode == codeResourceDoesNotExist
}
