package cli

import (
	"fmt"

	"github.com/ralt/qpkgrepo/internal/config"
	"github.com/ralt/qpkgrepo/internal/generator/qpkg"
	"github.com/ralt/qpkgrepo/internal/models"
	"github.com/ralt/qpkgrepo/internal/repository"
	"github.com/ralt/qpkgrepo/internal/signer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// repositoryOptions are the flags shared by every command that builds a
// repository. Flags left unset keep the environment value.
type repositoryOptions struct {
	storageRoot     string
	websiteRoot     string
	cacheDir        string
	sources         []string
	platforms       []string
	gpgKeyPath      string
	gpgPassphrase   string
	fallbackVersion string
}

func (o *repositoryOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.storageRoot, "storage-root", "s", "", "Directory the package locations are relative to")
	cmd.Flags().StringVarP(&o.websiteRoot, "website-root", "w", "", "Public URL the storage root is served from")
	cmd.Flags().StringVar(&o.cacheDir, "cache-dir", "", "Directory holding the per-source metadata caches")
	cmd.Flags().StringSliceVar(&o.sources, "source", nil, "Package directory, relative to the storage root (repeatable)")
	cmd.Flags().StringSliceVar(&o.platforms, "default-platform", nil, "Platform identifiers used when a request names none")

	cmd.Flags().StringVarP(&o.gpgKeyPath, "gpg-key", "k", "", "Path to GPG private key")
	cmd.Flags().StringVarP(&o.gpgPassphrase, "gpg-passphrase", "p", "", "GPG key passphrase")

	cmd.Flags().StringVar(&o.fallbackVersion, "fallback-version", "", "Publish packages with unparsable versions using this version")
}

// load reads the environment configuration and applies the flags set on cmd
func (o *repositoryOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("storage-root") {
		cfg.StorageRoot = o.storageRoot
	}
	if flags.Changed("website-root") {
		cfg.WebsiteRoot = o.websiteRoot
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = o.cacheDir
	}
	if flags.Changed("source") {
		cfg.Sources = o.sources
	}
	if flags.Changed("default-platform") {
		cfg.DefaultPlatforms = o.platforms
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		if err := cfg.ApplyLogLevel(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logrus.Debugf("Configuration: %+v", cfg)
	return cfg, nil
}

// buildRepository creates one source per configured directory, each using
// the QPKG control extractor
func buildRepository(cfg *config.Config) (*repository.Repository, error) {
	repoConfig, err := cfg.Repository()
	if err != nil {
		return nil, err
	}

	var sources []*repository.Source
	for _, dir := range cfg.SourceDirs() {
		source, err := repository.NewSource(dir, qpkg.ReadControl, cfg.SourceDefaults())
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}

	if repoConfig.CacheDir == "" {
		logrus.Warn("No cache directory configured, package metadata is kept in memory only")
	}
	logrus.Infof("Publishing %d source(s) from %s", len(sources), repoConfig.StorageRoot)
	return repository.New(repoConfig, sources)
}

// loadSigner returns nil when no key is configured
func (o *repositoryOptions) loadSigner() (signer.Signer, error) {
	if o.gpgKeyPath == "" {
		return nil, nil
	}

	s, err := signer.NewGPGSigner(o.gpgKeyPath, o.gpgPassphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GPG signer: %w", err)
	}
	logrus.Info("GPG signer initialized")
	return s, nil
}

// versionHook publishes unparsable versions under the fallback version, or
// returns nil so such packages are reported as malformed
func (o *repositoryOptions) versionHook() (qpkg.VersionFailedFunc, error) {
	if o.fallbackVersion == "" {
		return nil, nil
	}

	fallback, err := models.ParseVersion(o.fallbackVersion)
	if err != nil {
		return nil, models.NewError(models.ErrInvalidConfig, "", fmt.Errorf("invalid fallback version: %w", err))
	}

	return func(path string) (models.Version, bool) {
		logrus.Warnf("Publishing %s with fallback version %s", path, fallback)
		return fallback, true
	}, nil
}
