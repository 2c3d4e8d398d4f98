package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/krau/headpose/config"
	"github.com/krau/headpose/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const usageLine = "headpose [hv] model.file image0 [imageN...]"

var errMissingModel = errors.New("missing required model, try --help for usage")

// Deps carries everything the commands need from the process.
type Deps struct {
	Stdout, Stderr io.Writer
	// Level is adjusted by --verbose.
	Level *slog.LevelVar
	// Provider prepares the inference provider for cfg. The returned
	// function releases whatever Provider acquired.
	Provider func(cfg config.Config) (pipeline.Provider, func(), error)
	// Version reports the inference runtime version.
	Version func(cfg config.Config) string
	// Serve runs the HTTP server until ctx is done.
	Serve func(ctx context.Context, cfg config.Config, provider pipeline.Provider) error
}

type options struct {
	configPath   string
	engine       string
	threshold    float32
	iou          float32
	norm         string
	maxDetection int
	noDetect     bool
	verbose      bool
}

func (o *options) register(fs *pflag.FlagSet) {
	def := config.Default()
	fs.StringVarP(&o.configPath, "config", "c", config.DefaultFile, "configuration file")
	fs.StringVarP(&o.engine, "engine", "e", def.Engine, `compute engine type "cpu", "npu", "gpu"`)
	fs.Float32VarP(&o.threshold, "threshold", "t", def.ScoreThreshold, "threshold for valid scores")
	fs.Float32VarP(&o.iou, "iou", "u", def.IoUThreshold, "IOU threshold for NMS")
	fs.StringVarP(&o.norm, "norm", "n", def.Norm.String(),
		"normalization method applied to input images:\n"+
			"raw (no processing), unsigned (0...1), signed (-1...1),\n"+
			"whitening (per-image standardization), imagenet (standardization using imagenet)")
	fs.IntVarP(&o.maxDetection, "max_detection", "m", def.MaxDetection, "number of maximum predictions (bounding boxes)")
	fs.BoolVarP(&o.noDetect, "no_detect", "d", false, "skip face detection and estimate the pose on the whole image")
	fs.BoolVar(&o.verbose, "verbose", false, "enable debug logging")
}

// config merges the config file with the flags that were set explicitly.
func (o *options) config(fs *pflag.FlagSet) (config.Config, error) {
	// --norm is validated first so a bad value fails before anything else.
	var norm config.Norm
	if fs.Changed("norm") {
		n, err := config.ParseNorm(o.norm)
		if err != nil {
			return config.Config{}, err
		}
		norm = n
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if fs.Changed("norm") {
		cfg.Norm = norm
	}
	if fs.Changed("engine") {
		cfg.Engine = o.engine
	}
	if fs.Changed("threshold") {
		cfg.ScoreThreshold = o.threshold
	}
	if fs.Changed("iou") {
		cfg.IoUThreshold = o.iou
	}
	if fs.Changed("max_detection") {
		cfg.MaxDetection = o.maxDetection
	}
	if o.noDetect {
		cfg.FaceDetect = false
	}
	return cfg.Clamped(), nil
}

func NewRootCommand(deps Deps) *cobra.Command {
	var (
		opts    options
		version bool
	)
	cmd := &cobra.Command{
		Use:   usageLine,
		Short: "Estimate head pose, optionally detecting faces first",
		Long: `Estimates the head pose of every face in the given images.

When a face detection model is found on HEADPOSE_MODEL_PATH each image is
run through face detection first and the pose model sees one crop per
detected face; otherwise the pose model sees the whole image.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd.Flags())
			if err != nil {
				return err
			}
			applyVerbose(deps, opts.verbose)
			if version {
				fmt.Fprintf(cmd.OutOrStdout(), "Head pose sample with ONNX Runtime %s\n", deps.Version(cfg))
				return nil
			}
			if len(args) == 0 {
				return errMissingModel
			}
			cfg.Model = args[0]
			images := args[1:]
			if len(images) == 0 {
				return pipeline.ErrNoImages
			}

			provider, release, err := deps.Provider(cfg)
			if err != nil {
				return err
			}
			defer release()
			return pipeline.Run(cfg, provider, images, cmd.OutOrStdout())
		},
	}
	cmd.SetOut(deps.Stdout)
	cmd.SetErr(deps.Stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w, try --help for usage", err)
	})
	cmd.Flags().SortFlags = false
	cmd.PersistentFlags().SortFlags = false

	opts.register(cmd.PersistentFlags())
	cmd.Flags().BoolVarP(&version, "version", "v", false, "display version information")

	cmd.AddCommand(newServeCommand(deps, &opts))
	return cmd
}

func applyVerbose(deps Deps, verbose bool) {
	if verbose && deps.Level != nil {
		deps.Level.Set(slog.LevelDebug)
	}
}
