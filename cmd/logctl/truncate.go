package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagTruncateAt     uint64
	flagTruncatePrefix bool
)

var truncateCmd = &cobra.Command{
	Use:   "truncate",
	Short: "Truncate a partition's suffix or prefix at an offset",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openLog()
		if err != nil {
			return err
		}
		defer log.Close()

		if flagTruncatePrefix {
			if err := log.TruncatePrefix(flagTruncateAt); err != nil {
				return err
			}
		} else {
			if err := log.TruncateSuffix(flagTruncateAt); err != nil {
				return err
			}
		}
		offsets := log.Offsets()
		fmt.Printf("truncated %s at %d: start=%d dirty=%d\n", log.NTP(), flagTruncateAt, offsets.StartOffset, offsets.DirtyOffset)
		return nil
	},
}

func init() {
	truncateCmd.Flags().Uint64Var(&flagTruncateAt, "at", 0, "offset to truncate at (required)")
	truncateCmd.Flags().BoolVar(&flagTruncatePrefix, "prefix", false, "truncate the prefix (drop offsets below --at) instead of the suffix")
	truncateCmd.MarkFlagRequired("at")
}
