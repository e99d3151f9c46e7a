package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagCollectible int64

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Run retention eviction and key compaction over a partition",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openLog()
		if err != nil {
			return err
		}
		defer log.Close()

		if flagCollectible >= 0 {
			log.SetCollectibleOffset(uint64(flagCollectible))
		}
		dropped, err := log.ApplyRetention()
		if err != nil {
			return fmt.Errorf("retention: %w", err)
		}
		compacted, err := log.Compact()
		if err != nil {
			return fmt.Errorf("compact: %w", err)
		}
		fmt.Printf("%s: dropped %d segment(s), compacted %d segment(s)\n", log.NTP(), dropped, compacted)
		return nil
	},
}

func init() {
	compactCmd.Flags().Int64Var(&flagCollectible, "collectible", -1, "collectible offset safety bound (default: unset)")
}
