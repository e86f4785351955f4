package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/validate"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <records.json>",
		Short: "Check a canonical-record JSON file against the schema",
		Long:  "Accepts either a bare array of records or a run result with a \"records\" field.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			v, err := validate.New()
			if err != nil {
				return err
			}
			res := v.ValidateJSON(recordsPayload(data))

			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if !res.Valid {
				return fmt.Errorf("%d schema errors", len(res.Errors))
			}
			return nil
		},
	}
}

// recordsPayload unwraps {"records": [...]} so run output validates as-is.
func recordsPayload(data []byte) []byte {
	var wrapped struct {
		Records json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Records) > 0 {
		return wrapped.Records
	}
	return data
}
