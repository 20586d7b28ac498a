// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// defaultStatusAddr matches the default --metrics-addr of serve.
const defaultStatusAddr = "127.0.0.1:9100"

// ProbeStatus holds the result of one health probe.
type ProbeStatus struct {
	Probe  string `json:"probe"`
	OK     bool   `json:"ok"`
	Code   int    `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	addr       string
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running authd",
		Long: `Queries the liveness and readiness probes of a running authd
on its metrics address. Readiness fails while the credential store is unreachable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg, &http.Client{Timeout: cfg.timeout})
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", defaultStatusAddr, "metrics/health address of the running authd")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "timeout for each probe")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig, client *http.Client) error {
	base := cfg.addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	statuses := []ProbeStatus{
		queryProbe(cmd.Context(), client, base, "liveness"),
		queryProbe(cmd.Context(), client, base, "readiness"),
	}

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(data))
	} else {
		cmd.Print(formatStatusTable(statuses))
	}

	for _, s := range statuses {
		if !s.OK {
			return fmt.Errorf("%s probe failed", s.Probe)
		}
	}
	return nil
}

func queryProbe(ctx context.Context, client *http.Client, base, probe string) ProbeStatus {
	status := ProbeStatus{Probe: probe}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz/"+probe, nil)
	if err != nil {
		status.Error = fmt.Sprintf("invalid address: %v", err)
		return status
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		status.Error = fmt.Sprintf("failed to read response: %v", err)
		return status
	}
	status.Code = resp.StatusCode
	status.Detail = strings.TrimSpace(string(body))
	status.OK = resp.StatusCode == http.StatusOK
	return status
}

// formatStatusTable formats the probes as a human-readable table.
func formatStatusTable(statuses []ProbeStatus) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PROBE\tSTATUS\tCODE\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t------\t----\t------")

	for _, s := range statuses {
		switch {
		case s.Error != "":
			_, _ = fmt.Fprintf(w, "%s\tunreachable\t-\t%s\n", s.Probe, s.Error)
		case s.OK:
			_, _ = fmt.Fprintf(w, "%s\tok\t%d\t%s\n", s.Probe, s.Code, s.Detail)
		default:
			_, _ = fmt.Fprintf(w, "%s\tfailing\t%d\t%s\n", s.Probe, s.Code, s.Detail)
		}
	}

	_ = w.Flush()
	return sb.String()
}
