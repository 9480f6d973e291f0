/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ssargent/aora/pkg/api"
)

// appendCmd represents the append command
var appendCmd = &cobra.Command{
	Use:   "append [value]",
	Short: "Append a record and print its key",
	Long: `Append a record to the log. The value is taken from the argument, or
read from stdin when no argument is given.

Examples:
  aora append "hello world"
  cat event.json | aora append`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var value []byte
		if len(args) == 1 {
			value = []byte(args[0])
		} else {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			value = data
		}

		service, _, err := openService(cmd, api.ServiceOptions{})
		if err != nil {
			return err
		}
		defer service.Close()

		key, err := service.Append(value)
		if err != nil {
			return fmt.Errorf("failed to append: %w", err)
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
		return err
	},
}

func init() {
	rootCmd.AddCommand(appendCmd)
}
