// Command ledgerdock is a small API client for driving an ingestion stack
// from the terminal: upload files, poll jobs, review transactions and trigger
// exports.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiBase string
	ownerID string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerdock: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ledgerdock",
		Short:        "LedgerDock API client",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&apiBase, "api", "http://localhost:8080", "Base URL of the LedgerDock API")
	cmd.PersistentFlags().StringVar(&ownerID, "owner", "", "Owner id for scoped commands")
	cmd.AddCommand(
		newUploadCmd(),
		newJobsCmd(),
		newStatusCmd(),
		newTransactionsCmd(),
		newConfirmCmd(),
		newExportCmd(),
	)
	return cmd
}

func newUploadCmd() *cobra.Command {
	var jobType string
	var bankAccountID string
	var force bool
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a statement or invoice batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ownerID == "" {
				return fmt.Errorf("--owner is required")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			w := multipart.NewWriter(&buf)
			_ = w.WriteField("ownerId", ownerID)
			_ = w.WriteField("jobType", jobType)
			if bankAccountID != "" {
				_ = w.WriteField("bankAccountId", bankAccountID)
			}
			part, err := w.CreateFormFile("file", filepath.Base(args[0]))
			if err != nil {
				return err
			}
			if _, err := part.Write(data); err != nil {
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}

			url := apiBase + "/jobs"
			if force {
				url += "?force=true"
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, &buf)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", w.FormDataContentType())
			return doRequest(req)
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "spreadsheet", "Job type: spreadsheet or invoice-batch")
	cmd.Flags().StringVar(&bankAccountID, "account", "", "Bank account id the upload belongs to")
	cmd.Flags().BoolVar(&force, "force", false, "Bypass the duplicate gate")
	return cmd
}

func newJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List jobs for the owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ownerID == "" {
				return fmt.Errorf("--owner is required")
			}
			return get(cmd.Context(), "/jobs?ownerId="+ownerID)
		},
	}
}

func newStatusCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !wait {
				return get(cmd.Context(), "/jobs/"+args[0])
			}
			// Poll until the job leaves the pipeline.
			for {
				body, status, err := fetch(cmd.Context(), "/jobs/"+args[0])
				if err != nil {
					return err
				}
				fmt.Println(string(body))
				if status != http.StatusOK {
					return fmt.Errorf("status %d", status)
				}
				var job struct {
					Status string `json:"status"`
				}
				if err := json.Unmarshal(body, &job); err != nil {
					return err
				}
				switch job.Status {
				case "reviewing", "completed", "failed":
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(time.Second):
				}
			}
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job reaches a terminal state")
	return cmd
}

func newTransactionsCmd() *cobra.Command {
	var grouped bool
	cmd := &cobra.Command{
		Use:   "transactions <job-id>",
		Short: "List a job's transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/jobs/" + args[0] + "/transactions"
			if grouped {
				path += "?grouped=true"
			}
			return get(cmd.Context(), path)
		},
	}
	cmd.Flags().BoolVar(&grouped, "grouped", false, "Collapse invoice line items into groups")
	return cmd
}

func newConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <transaction-id>",
		Short: "Confirm a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, apiBase+"/transactions/"+args[0]+"/confirm", nil)
			if err != nil {
				return err
			}
			return doRequest(req)
		},
	}
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <job-id> <target>",
		Short: "Export a job's transactions to a spreadsheet target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, apiBase+"/jobs/"+args[0]+"/export/"+args[1], nil)
			if err != nil {
				return err
			}
			return doRequest(req)
		},
	}
}

func get(ctx context.Context, path string) error {
	body, status, err := fetch(ctx, path)
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	if status >= 400 {
		return fmt.Errorf("status %d", status)
	}
	return nil
}

func fetch(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+path, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func doRequest(req *http.Request) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
