/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssargent/aora/pkg/api"
	"github.com/ssargent/aora/pkg/codec"
	"github.com/ssargent/aora/pkg/store"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the log and repair a torn tail",
	Long: `Open the log, validating every frame. A torn tail is truncated as it
would be on any open. Any other corruption is reported with its offset and
the command exits non-zero without touching the file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		service, cfg, err := openService(cmd, api.ServiceOptions{})
		if err != nil {
			if errors.Is(err, store.ErrUnrecoverable) {
				var frameErr *codec.FrameError
				var decodeErr *codec.DecodeError
				switch {
				case errors.As(err, &frameErr):
					fmt.Fprintf(cmd.OutOrStdout(), "Log %s is corrupt at offset %d: %v\n", cfg.LogPath(), frameErr.Offset, frameErr.Err)
				case errors.As(err, &decodeErr):
					fmt.Fprintf(cmd.OutOrStdout(), "Log %s has an undecodable record at offset %d: %v\n", cfg.LogPath(), decodeErr.Offset, decodeErr.Err)
				}
			}
			return err
		}
		defer service.Close()

		res := service.Recovery()
		stats := service.Stats()

		path := make([]string, len(res.Path))
		for i, state := range res.Path {
			path[i] = state.String()
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Log: %s\n", cfg.LogPath())
		fmt.Fprintf(out, "State: %s (%s)\n", res.State(), strings.Join(path, " -> "))
		fmt.Fprintf(out, "Records validated: %d\n", res.RecordsValidated)
		if res.Repaired() {
			fmt.Fprintf(out, "Torn tail truncated: %d bytes at offset %d\n", res.BytesTruncated, res.TornOffset)
		}
		fmt.Fprintf(out, "Keys: %d\n", stats.Keys)
		fmt.Fprintf(out, "Data size: %d bytes\n", stats.DataSize)
		fmt.Fprintf(out, "Recovery time: %s\n", res.RecoveryTime)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
