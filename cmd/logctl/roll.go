package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rollCmd = &cobra.Command{
	Use:   "roll",
	Short: "Force the active segment to seal and start a new one",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openLog()
		if err != nil {
			return err
		}
		defer log.Close()
		if err := log.Roll(); err != nil {
			return err
		}
		fmt.Printf("rolled %s: now %d segments\n", log.NTP(), log.SegmentCount())
		return nil
	},
}
