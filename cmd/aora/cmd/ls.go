/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/aora/pkg/api"
)

// lsCmd represents the ls command
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List keys in insertion order",
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, _ := cmd.Flags().GetInt("offset")
		limit, _ := cmd.Flags().GetInt("limit")
		if offset < 0 || limit < 0 {
			return errors.New("offset and limit must not be negative")
		}

		service, _, err := openService(cmd, api.ServiceOptions{})
		if err != nil {
			return err
		}
		defer service.Close()

		out := cmd.OutOrStdout()
		keys, _ := service.Keys(offset, limit)
		for _, key := range keys {
			if _, err := fmt.Fprintln(out, key); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().Int("offset", 0, "Number of keys to skip")
	lsCmd.Flags().Int("limit", 0, "Maximum number of keys to list, 0 for all")
}
