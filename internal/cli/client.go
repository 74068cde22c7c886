package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	v1 "github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/transport/http/v1"
)

// TriggerOptions holds flags for the trigger command.
type TriggerOptions struct {
	*RootOptions
	Kind        string
	MaxProducts int
	MaxListings int
}

// NewTriggerCommand creates the trigger command.
func NewTriggerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TriggerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Start a pipeline run on a running server",
		Long: `Start a pipeline run on a running server.

Example:
  xeriaco trigger --kind full
  xeriaco trigger --kind price_update --addr pipeline.internal:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := domain.RunKind(opts.Kind)
			if !kind.Valid() {
				return fmt.Errorf("unknown run kind %q", opts.Kind)
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			body := domain.TriggerRequest{
				Kind:        kind,
				Limits:      domain.Limits{MaxProducts: opts.MaxProducts, MaxListings: opts.MaxListings},
				TriggeredBy: domain.TriggerManual,
			}
			return callAPI(cmd.Context(), cmd.OutOrStdout(), http.MethodPost,
				opts.baseURL(cfg)+"/v1/pipeline/runs", cfg.AdminAPIKey, body)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", string(domain.RunKindFull), "run kind (full|trend_scout|price_update|inventory_check)")
	cmd.Flags().IntVar(&opts.MaxProducts, "max-products", 0, "discovery cap for this run")
	cmd.Flags().IntVar(&opts.MaxListings, "max-listings", 0, "listing cap for this run")

	return cmd
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the pipeline status of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			return callAPI(cmd.Context(), cmd.OutOrStdout(), http.MethodGet,
				rootOpts.baseURL(cfg)+"/v1/pipeline/status", cfg.AdminAPIKey, nil)
		},
	}
}

// callAPI sends one request and pretty-prints the JSON answer. Conflicts
// are printed too but still fail the command.
func callAPI(ctx context.Context, out io.Writer, method, url, adminKey string, body any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if adminKey != "" {
		req.Header.Set(v1.AdminKeyHeader, adminKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	fmt.Fprintln(out, string(raw))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
