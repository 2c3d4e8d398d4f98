package cli

import (
	"github.com/spf13/cobra"
)

func newServeCommand(deps Deps, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve model.file",
		Short: "Serve head pose estimation over HTTP",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errMissingModel
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd.Flags())
			if err != nil {
				return err
			}
			applyVerbose(deps, opts.verbose)
			cfg.Model = args[0]

			provider, release, err := deps.Provider(cfg)
			if err != nil {
				return err
			}
			defer release()
			return deps.Serve(cmd.Context(), cfg, provider)
		},
	}
}
