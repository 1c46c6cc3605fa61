package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cepro/scriptedemitter/scripted"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [script.json]",
	Short: "Check that a script file can be replayed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := readScript(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events, cycle of %s\n", args[0], len(script.Events), script.CycleDuration())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// readScript decodes and validates a script file the same way a script command payload is handled.
func readScript(path string) (scripted.Script, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return scripted.Script{}, fmt.Errorf("read script file: %w", err)
	}

	var raw any
	err = json.Unmarshal(content, &raw)
	if err != nil {
		return scripted.Script{}, fmt.Errorf("unmarshal script: %w", err)
	}

	script, err := scripted.DecodeScript(raw)
	if err != nil {
		return scripted.Script{}, fmt.Errorf("decode script: %w", err)
	}
	err = script.Validate()
	if err != nil {
		return scripted.Script{}, fmt.Errorf("invalid script: %w", err)
	}
	return script, nil
}
