package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/normalize"
)

var (
	scanInput  string
	scanSource string
	scanJSON   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Process a batch of raw detections into inventory",
	Long:  "Reads detector output (JSON array of detections) from a file or stdin, fuses it into food items, and evaluates expiry alerts for everything touched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raws, err := readDetections(scanInput)
		if err != nil {
			return err
		}
		if len(raws) == 0 {
			fmt.Fprintln(os.Stderr, "No detections in input.")
			return nil
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		session := model.ScanSession{
			ID:        uuid.NewString(),
			SourceID:  scanSource,
			Timestamp: time.Now().UTC(),
		}

		report, err := env.Pipeline.Scan(ctx, session, raws)
		if err != nil {
			return eris.Wrap(err, "scan")
		}

		if scanJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		fmt.Printf("Session %s: %d detections, %d fused records\n", report.SessionID, report.Candidates, report.Fused)
		fmt.Printf("Items: %d created, %d updated, %d flagged for review\n", report.Created, report.Updated, report.Flagged)
		for _, res := range report.Results {
			item := res.Item
			line := fmt.Sprintf("  %-8s %s (%s, %s)", res.Outcome, item.Name, item.Category, item.Location)
			if !item.ExpiryDate.IsZero() {
				line += fmt.Sprintf(" expires %s", item.ExpiryDate.Format("2006-01-02"))
			}
			fmt.Println(line)
		}
		if report.AlertsCreated > 0 {
			fmt.Printf("Alerts created: %d\n", report.AlertsCreated)
		}
		return nil
	},
}

// readDetections loads raw detections from path, or stdin when path is "-".
func readDetections(path string) ([]normalize.RawDetection, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "open detections file")
		}
		defer f.Close()
		r = f
	}

	var raws []normalize.RawDetection
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, eris.Wrap(err, "decode detections")
	}
	return raws, nil
}

func init() {
	scanCmd.Flags().StringVarP(&scanInput, "input", "i", "-", `detections JSON file ("-" for stdin)`)
	scanCmd.Flags().StringVar(&scanSource, "source", "cli", "detector source identifier")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the scan report as JSON")
	rootCmd.AddCommand(scanCmd)
}
