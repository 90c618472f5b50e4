package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qpkgrepo",
		Short: "Publish QNAP package directories as an App Center repository",
		Long: `Qpkgrepo scans directories of .qpkg packages and publishes them as a
repo.xml feed that QNAP App Center clients can subscribe to.

Package metadata is cached per source directory, so only new files are
opened on subsequent scans.

Settings are read from QPKG_* environment variables and can be
overridden with flags.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	rootCmd.AddCommand(NewRenderCmd())
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}
