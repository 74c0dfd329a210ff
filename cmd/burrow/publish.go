package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/types"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a record from a YAML manifest",
	Long: `Publish a signed record to the blockchain or the peer graph.

Examples:
  # Publish to the blockchain (the default)
  burrow publish -f recipe.yaml

  # Publish to the peer graph with a stable local id
  burrow publish -f recipe.yaml --storage gun --local-id my-recipe

  # Fan out to both networks as a background job
  burrow publish -f recipe.yaml --destinations arweave,gun --async --wait`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringP("file", "f", "", "YAML record manifest (required)")
	publishCmd.Flags().String("storage", "", "Primary destination: arweave or gun")
	publishCmd.Flags().String("local-id", "", "Stable peer-graph soul suffix")
	publishCmd.Flags().String("reader", "", "Public key a private record is sealed for")
	publishCmd.Flags().String("destinations", "", "Comma-separated multi-destination fan-out")
	publishCmd.Flags().Bool("async", false, "Submit as a background job")
	publishCmd.Flags().Bool("wait", false, "With --async, poll until the job finishes")
	clientFlags(publishCmd)
	_ = publishCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(publishCmd)
}

// recordManifest is the YAML shape burrow publish consumes. Flags
// override manifest fields.
type recordManifest struct {
	RecordType      string           `yaml:"recordType,omitempty"`
	Storage         string           `yaml:"storage,omitempty"`
	LocalID         string           `yaml:"localId,omitempty"`
	AccessLevel     string           `yaml:"accessLevel,omitempty"`
	ReaderPublicKey string           `yaml:"readerPublicKey,omitempty"`
	Destinations    []string         `yaml:"destinations,omitempty"`
	Data            types.RecordData `yaml:"data"`
}

func runPublish(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	raw, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var manifest recordManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if len(manifest.Data) == 0 {
		return fmt.Errorf("manifest has no data sections")
	}

	req := client.PublishRequest{
		Data:            manifest.Data,
		RecordType:      manifest.RecordType,
		Storage:         manifest.Storage,
		LocalID:         manifest.LocalID,
		ReaderPublicKey: manifest.ReaderPublicKey,
		Destinations:    manifest.Destinations,
	}
	if strings.EqualFold(manifest.AccessLevel, string(types.AccessPrivate)) {
		req.AccessControl = &types.AccessControl{AccessLevel: types.AccessPrivate}
	}
	if v, _ := cmd.Flags().GetString("storage"); v != "" {
		req.Storage = v
	}
	if v, _ := cmd.Flags().GetString("local-id"); v != "" {
		req.LocalID = v
	}
	if v, _ := cmd.Flags().GetString("reader"); v != "" {
		req.ReaderPublicKey = v
	}
	if v, _ := cmd.Flags().GetString("destinations"); v != "" {
		req.Destinations = splitCSV(v)
	}

	c := newClient(cmd)
	async, _ := cmd.Flags().GetBool("async")
	if !async {
		result, err := c.Publish(req)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	}

	accepted, err := c.PublishAsync(req)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Job submitted: %s\n", accepted.JobID)
	fmt.Printf("  Status: %s\n", accepted.StatusURL)

	if wait, _ := cmd.Flags().GetBool("wait"); !wait {
		return nil
	}
	job, err := c.WaitForJob(context.Background(), accepted.JobID, 2*time.Second)
	if err != nil {
		return err
	}
	printJob(job)
	if job.Status == types.JobFailed {
		return fmt.Errorf("publish failed: %s", job.Error)
	}
	return nil
}

func printResult(result *types.PublishResult) {
	fmt.Printf("✓ Published: %s\n", result.Status)
	if result.DID != "" {
		fmt.Printf("  DID: %s\n", result.DID)
	}
	if result.TransactionID != "" {
		fmt.Printf("  Transaction: %s\n", result.TransactionID)
	}
	for _, dest := range result.Destinations {
		mark := "✓"
		if dest.Status != types.PublishSuccess {
			mark = "✗"
		}
		line := fmt.Sprintf("  %s %s", mark, dest.Destination)
		if dest.DID != "" {
			line += " " + string(dest.DID)
		}
		if dest.Error != "" {
			line += fmt.Sprintf(" (%s)", dest.Error)
		}
		fmt.Println(line)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
