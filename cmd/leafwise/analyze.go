package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/leafwise/leafwise-go"
)

// refreshSkew refreshes ahead of an upload when the access token is about
// to expire, saving the 401 round trip.
const refreshSkew = 30 * time.Second

func newAnalyzeCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze <image>...",
		Short: "Analyze one or more leaf photos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, log, err := newClient()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			if err := client.Sessions.Load(ctx); err != nil {
				return err
			}
			if !client.Sessions.Snapshot().Authenticated() {
				return fmt.Errorf("not signed in; run `leafwise login` first")
			}
			client.Sessions.EnsureFresh(ctx, refreshSkew)

			assets := make([]leafwise.MediaAsset, len(args))
			for i, arg := range args {
				assets[i] = leafwise.MediaAsset{
					URI:  arg,
					Name: filepath.Base(arg),
				}
			}

			var results []leafwise.AnalysisResult
			if len(assets) == 1 {
				result, err := client.Analyze.AnalyzeOne(ctx, assets[0])
				if err != nil {
					return err
				}
				results = []leafwise.AnalysisResult{*result}
			} else {
				results, err = client.Analyze.AnalyzeBatch(ctx, assets)
				if err != nil {
					return err
				}
			}

			for i, result := range results {
				printResult(assets[i].Name, result, asJSON)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON results")
	return cmd
}

func printResult(name string, result leafwise.AnalysisResult, asJSON bool) {
	if asJSON {
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Printf("  (failed to encode: %v)\n", err)
			return
		}
		fmt.Println(string(encoded))
		return
	}

	fmt.Printf("%s\n", name)
	if result.Rejection != nil {
		fmt.Printf("  rejected: %s\n", result.Rejection.Reason)
		return
	}

	fmt.Printf("  part:     %s (%.0f%%)\n", result.Part.Label, result.Part.Confidence*100)
	fmt.Printf("  disease:  %s (%.0f%%)\n", result.Disease.Label, result.Disease.Confidence*100)
	fmt.Printf("  severity: %s\n", result.Severity())
	if result.Spots != nil && result.Spots.Count > 0 {
		fmt.Printf("  spots:    %d\n", result.Spots.Count)
	}
	if result.Recommendations != nil {
		for _, suggestion := range result.Recommendations.Suggestions {
			fmt.Printf("  - %s\n", suggestion)
		}
	}
}
