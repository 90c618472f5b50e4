package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ralt/qpkgrepo/internal/config"
	"github.com/ralt/qpkgrepo/internal/generator/qpkg"
	"github.com/ralt/qpkgrepo/internal/models"
	"github.com/ralt/qpkgrepo/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRenderCmd creates the render command
func NewRenderCmd() *cobra.Command {
	var (
		opts           repositoryOptions
		output         string
		platformModels []string
		platform       string
		is64Bit        bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render repo.xml once",
		Long: `Scans the configured sources, updates their metadata caches and writes
the resulting repo.xml to a file or to standard output. With a GPG key a
detached signature is written next to the output file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			return runRender(cmd, &opts, cfg, renderTarget{
				output:   output,
				models:   platformModels,
				platform: platform,
				is64Bit:  is64Bit,
			})
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for standard output")
	cmd.Flags().StringSliceVar(&platformModels, "model", nil, "Platform identifiers to publish (repeatable)")
	cmd.Flags().StringVar(&platform, "platform", "", "Platform hint selecting the architecture (arm, x86, ...)")
	cmd.Flags().BoolVar(&is64Bit, "64bit", false, "Treat the platform hint as 64-bit")

	return cmd
}

type renderTarget struct {
	output   string
	models   []string
	platform string
	is64Bit  bool
}

// query expresses the target the way an HTTP client would
func (t renderTarget) query() url.Values {
	values := url.Values{}
	for _, m := range t.models {
		values.Add(qpkg.ParamModel, m)
	}
	if t.platform != "" {
		values.Set(qpkg.ParamPlatform, t.platform)
	}
	values.Set(qpkg.Param64Bit, strconv.FormatBool(t.is64Bit))
	return values
}

func (t renderTarget) toStdout() bool {
	return t.output == "" || t.output == "-"
}

func runRender(cmd *cobra.Command, opts *repositoryOptions, cfg *config.Config, target renderTarget) error {
	sign, err := opts.loadSigner()
	if err != nil {
		return err
	}
	if sign != nil && target.toStdout() {
		return models.NewError(models.ErrInvalidConfig, "", fmt.Errorf("signing requires --output to name a file"))
	}

	hook, err := opts.versionHook()
	if err != nil {
		return err
	}

	repo, err := buildRepository(cfg)
	if err != nil {
		return err
	}

	req := qpkg.ParseRequest(target.query(), cfg.DefaultPlatforms)
	manifest := repo.Manifest(cmd.Context(), req, hook)
	data, err := manifest.Marshal()
	if err != nil {
		return err
	}

	if target.toStdout() {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	if err := utils.WriteFileAtomic(target.output, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	logrus.Infof("Wrote %d package(s) to %s", len(manifest.Items), target.output)

	if sign != nil {
		signature, err := sign.SignDetached(data)
		if err != nil {
			return err
		}
		if err := utils.WriteFileAtomic(target.output+".asc", signature, 0644); err != nil {
			return fmt.Errorf("failed to write signature: %w", err)
		}
		logrus.Infof("Signed manifest: %s.asc", target.output)
	}

	return nil
}
