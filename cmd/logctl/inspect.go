package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print offsets and segment layout for a partition",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openLog()
		if err != nil {
			return err
		}
		defer log.Close()

		offsets := log.Offsets()
		fmt.Printf("ntp:              %s\n", log.NTP())
		fmt.Printf("term:             %d\n", log.Term())
		fmt.Printf("start_offset:     %d\n", offsets.StartOffset)
		fmt.Printf("dirty_offset:     %d\n", offsets.DirtyOffset)
		fmt.Printf("committed_offset: %d\n", offsets.CommittedOffset)
		fmt.Printf("segments:         %d\n", log.SegmentCount())
		return nil
	},
}
