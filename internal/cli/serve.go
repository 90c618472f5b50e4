package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ralt/qpkgrepo/internal/server"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var (
		opts   repositoryOptions
		listen string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve repo.xml over HTTP",
		Long: `Serves the feed at /repo.xml, rendered on every request from the
cached package metadata. POST /reload drops the in-memory caches. With a
GPG key the public key is published at /pubkey.asc.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}

			sign, err := opts.loadSigner()
			if err != nil {
				return err
			}
			hook, err := opts.versionHook()
			if err != nil {
				return err
			}
			repo, err := buildRepository(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(repo, sign, server.WithVersionFailed(hook))
			return srv.Run(ctx, cfg.Listen)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&listen, "listen", "l", ":8080", "Address to listen on")

	return cmd
}
