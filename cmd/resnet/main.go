// Package main provides the resnet command-line tool.
//
// Commands:
//
//	resnet summary --preset resnet18 --input 1x3x224x224
//	resnet init --preset small --out small.born --half
//	resnet infer --model small.born --batch 4 --size 64
//	resnet inspect --quick small.born
//	resnet bench --preset resnet18 --iters 10
//	resnet version
//
// klog flags (-v, --logtostderr, ...) are available on every command.
package main

import (
	goflag "flag"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

const version = "v0.1.0"

func main() {
	defer klog.Flush()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "resnet",
		Short:         "Build, inspect and run residual image classifiers",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	root.AddCommand(
		newSummaryCmd(),
		newInitCmd(),
		newInferCmd(),
		newInspectCmd(),
		newBenchCmd(),
		newVersionCmd(),
	)
	return root
}
