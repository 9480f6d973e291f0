/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/aora/pkg/api"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value stored under a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		service, _, err := openService(cmd, api.ServiceOptions{})
		if err != nil {
			return err
		}
		defer service.Close()

		value, found, err := service.Get(args[0])
		if err != nil {
			return fmt.Errorf("failed to get value: %w", err)
		}
		if !found {
			return fmt.Errorf("key not found: %s", args[0])
		}

		_, err = cmd.OutOrStdout().Write(value)
		return err
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
