package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/resnet/backend/cpu"
	"github.com/born-ml/resnet/internal/config"
	"github.com/born-ml/resnet/internal/serialization"
	"github.com/born-ml/resnet/resnet"
	"github.com/born-ml/resnet/tensor"
)

// networkFlags selects a configuration from a preset or a YAML file.
type networkFlags struct {
	preset string
	file   string
	seed   int64
}

func (f *networkFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.preset, "preset", "", fmt.Sprintf("built-in configuration (%s)", strings.Join(config.PresetNames(), ", ")))
	cmd.Flags().StringVar(&f.file, "config", "", "YAML configuration file")
	cmd.Flags().Int64Var(&f.seed, "seed", -1, "override the initialization seed")
}

func (f *networkFlags) resolve() (resnet.Config, error) {
	cfg, err := config.Resolve(f.preset, f.file)
	if err != nil {
		return resnet.Config{}, err
	}
	if f.seed >= 0 {
		cfg.Seed = uint64(f.seed)
	}
	return cfg, nil
}

// parseShape parses "NxCxHxW" (or any rank) into a Shape.
func parseShape(s string) (tensor.Shape, error) {
	parts := strings.Split(strings.ToLower(s), "x")
	shape := make(tensor.Shape, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d < 1 {
			return nil, errors.Errorf("invalid shape %q: dimension %q must be a positive integer", s, p)
		}
		shape[i] = d
	}
	return shape, nil
}

func newSummaryCmd() *cobra.Command {
	var (
		nf    networkFlags
		input string
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print every layer with its output shape and parameter count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := nf.resolve()
			if err != nil {
				return err
			}
			shape, err := parseShape(input)
			if err != nil {
				return err
			}
			net, err := resnet.New(cfg, cpu.New())
			if err != nil {
				return err
			}
			rows, err := net.Summarize(shape)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, summaryTable(rows))
			fmt.Fprintf(out, "%s: %s parameters (%s as float32), %s state tensors\n",
				cfg.Name, humanize.Comma(int64(net.NumParameters())),
				humanize.Bytes(uint64(4*net.NumParameters())), humanize.Comma(int64(len(net.StateDict()))))
			return nil
		},
	}
	nf.register(cmd)
	cmd.Flags().StringVar(&input, "input", "1x3x224x224", "input shape NxCxHxW")
	return cmd
}

func newInitCmd() *cobra.Command {
	var (
		nf   networkFlags
		out  string
		half bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Build a freshly initialized network and save it as a checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			cfg, err := nf.resolve()
			if err != nil {
				return err
			}
			net, err := resnet.New(cfg, cpu.New())
			if err != nil {
				return err
			}
			id, err := resnet.Save(net, out, resnet.SaveOptions{
				Half:     half,
				Metadata: map[string]string{"created_by": "resnet init " + version},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s parameters) to %s\nmodel id: %s\n",
				cfg.Name, humanize.Comma(int64(net.NumParameters())), out, id)
			return nil
		},
	}
	nf.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "checkpoint path to write")
	cmd.Flags().BoolVar(&half, "half", false, "store weights as float16")
	return cmd
}

// loadCheckpoint loads path, or standard input when path is "-".
func loadCheckpoint(cmd *cobra.Command, path string, backend *cpu.Backend) (*resnet.Network[*cpu.Backend], resnet.CheckpointInfo, error) {
	if path == "-" {
		return resnet.Read(cmd.InOrStdin(), backend)
	}
	info, err := resnet.Inspect(path)
	if err != nil {
		return nil, resnet.CheckpointInfo{}, err
	}
	net, err := resnet.Load(path, backend)
	if err != nil {
		return nil, resnet.CheckpointInfo{}, err
	}
	return net, info, nil
}

func newInferCmd() *cobra.Command {
	var (
		modelPath string
		batch     int
		size      int
		seed      uint64
	)
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Load a checkpoint and classify a random batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if modelPath == "" {
				return errors.New("--model is required")
			}
			if batch < 1 || size < 1 {
				return errors.New("--batch and --size must be positive")
			}
			backend := cpu.New()
			net, info, err := loadCheckpoint(cmd, modelPath, backend)
			if err != nil {
				return err
			}
			x := tensor.Randn(tensor.Shape{batch, net.Config().InputChannels, size, size}, seed, backend)

			start := time.Now()
			logits, err := resnet.Predict(net, x)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model %s (%s, written by engine %s, %s)\n",
				info.ModelID, info.Config.Name, info.EngineVersion, humanize.Time(info.CreatedAt))
			fmt.Fprintf(out, "input %v -> logits %v in %s\n", x.Shape(), logits.Shape(), elapsed.Round(time.Microsecond))
			for i, class := range logits.Argmax() {
				fmt.Fprintf(out, "sample %d: class %d\n", i, class)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "checkpoint to load (- for standard input)")
	cmd.Flags().IntVar(&batch, "batch", 1, "batch size")
	cmd.Flags().IntVar(&size, "size", 224, "input height and width")
	cmd.Flags().Uint64Var(&seed, "input-seed", 1, "seed for the random input batch")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var quick bool
	cmd := &cobra.Command{
		Use:   "inspect <checkpoint>",
		Short: "Print a checkpoint's header without loading its weights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := resnet.InspectWithOptions(args[0], resnet.InspectOptions{Quick: quick})
			if err != nil {
				return err
			}
			dtype := "float32"
			if info.Half {
				dtype = "float16"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model id:  %s\n", info.ModelID)
			fmt.Fprintf(out, "network:   %s (%s blocks, %d stages, %d classes)\n",
				info.Config.Name, info.Config.Block, len(info.Config.Stages), info.Config.NumClasses)
			fmt.Fprintf(out, "tensors:   %s (%s)\n", humanize.Comma(int64(info.NumTensors)), dtype)
			fmt.Fprintf(out, "engine:    %s, written %s\n", info.EngineVersion, humanize.Time(info.CreatedAt))
			for _, k := range slices.Sorted(maps.Keys(info.Metadata)) {
				fmt.Fprintf(out, "meta %s: %s\n", k, info.Metadata[k])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&quick, "quick", false, "read the header only, skipping checksum and offset checks")
	return cmd
}

func newBenchCmd() *cobra.Command {
	var (
		nf    networkFlags
		iters int
		batch int
		size  int
		quiet bool
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time repeated eval-mode forward passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if iters < 1 || batch < 1 || size < 1 {
				return errors.New("--iters, --batch and --size must be positive")
			}
			cfg, err := nf.resolve()
			if err != nil {
				return err
			}
			backend := cpu.New()
			net, err := resnet.New(cfg, backend)
			if err != nil {
				return err
			}
			x := tensor.Randn(tensor.Shape{batch, cfg.InputChannels, size, size}, 1, backend)
			klog.V(1).Infof("bench: %s, input %v, %d iterations on %d workers", cfg.Name, x.Shape(), iters, backend.Workers())

			bar := progressbar.NewOptions(iters,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("forward"),
				progressbar.OptionSetTheme(progressbar.ThemeASCII),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("passes"),
				progressbar.OptionSetVisibility(!quiet),
			)
			var total time.Duration
			for range iters {
				start := time.Now()
				if _, err := resnet.Predict(net, x); err != nil {
					return err
				}
				total += time.Since(start)
				_ = bar.Add(1)
			}
			_ = bar.Finish()

			mean := total / time.Duration(iters)
			perImage := mean / time.Duration(batch)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s: mean %s per batch of %d (%s per image, %.1f images/s)\n",
				cfg.Name, mean.Round(time.Microsecond), batch, perImage.Round(time.Microsecond),
				float64(batch)/mean.Seconds())
			return nil
		},
	}
	nf.register(cmd)
	cmd.Flags().IntVar(&iters, "iters", 10, "number of forward passes")
	cmd.Flags().IntVar(&batch, "batch", 1, "batch size")
	cmd.Flags().IntVar(&size, "size", 224, "input height and width")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "hide the progress bar")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "resnet %s (checkpoint format v%d, engine %s)\n",
				version, serialization.FormatVersion, serialization.EngineVersion)
		},
	}
}
