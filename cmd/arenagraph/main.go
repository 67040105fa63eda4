// Package main provides the arenagraph CLI.
//
// Usage:
//
//	arenagraph [-v N] <command> [flags]
//
// Commands:
//
//	add       Add two vectors through a one-node graph
//	estimate  Print the arena capacity for a workload
//	bench     Time repeated evaluation of an element-wise graph
//	version   Show version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// version is set with ldflags at build time.
var version = "v0.0.1-dev"

func main() {
	ctx := context.Background()
	err := run(ctx, os.Args[1:])
	klog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "arenagraph",
		Short:         "Arena-backed tensor graph runtime",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	root.AddCommand(
		newAddCmd(),
		newEstimateCmd(),
		newBenchCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "arenagraph %s\n", version)
		},
	}
}
