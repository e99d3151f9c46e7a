package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamstore/logengine/storage"
	"github.com/streamstore/logengine/types"
)

var (
	flagDir       string
	flagNamespace string
	flagTopic     string
	flagPartition uint32
)

var rootCmd = &cobra.Command{
	Use:          "logctl",
	Short:        "Inspect and maintain partition logs on disk",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "partition directory (overrides --namespace/--topic/--partition/--base-dir)")
	rootCmd.PersistentFlags().StringVar(&flagBaseDir, "base-dir", ".", "base directory holding <namespace>/<topic>/<partition>")
	rootCmd.PersistentFlags().StringVar(&flagNamespace, "namespace", "default", "partition namespace")
	rootCmd.PersistentFlags().StringVar(&flagTopic, "topic", "", "partition topic")
	rootCmd.PersistentFlags().Uint32Var(&flagPartition, "partition", 0, "partition index")

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(rollCmd)
	rootCmd.AddCommand(truncateCmd)
	rootCmd.AddCommand(compactCmd)
}

var flagBaseDir string

func targetNTP() types.NTP {
	return types.NTP{Namespace: flagNamespace, Topic: flagTopic, Partition: flagPartition}
}

func partitionDir() (string, types.NTP, error) {
	ntp := targetNTP()
	if flagDir != "" {
		return flagDir, ntp, nil
	}
	if flagTopic == "" {
		return "", ntp, fmt.Errorf("logctl: either --dir or --topic is required")
	}
	return fmt.Sprintf("%s/%s/%s/%d", flagBaseDir, flagNamespace, flagTopic, flagPartition), ntp, nil
}

func openLog() (*storage.Log, error) {
	dir, ntp, err := partitionDir()
	if err != nil {
		return nil, err
	}
	cfg := types.DefaultConfiguration(flagBaseDir)
	return storage.RecoverLog(dir, ntp, cfg)
}
