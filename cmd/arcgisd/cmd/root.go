// Package cmd implements the arcgisd CLI commands.
//
// The root command carries the configuration flags shared by every
// subcommand. Values resolve in order: flags, ARCGIS_* environment
// variables, arcgis.yaml, built-in defaults.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-drift/arcgis/internal/config"
)

// Version information set at build time.
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
)

// Keys understood by the viper overlay. Nested keys map to env vars with
// dots replaced by underscores, e.g. ARCGIS_LOG_LEVEL.
const (
	keyConfig       = "config"
	keyAPIKey       = "api_key"
	keyLicense      = "license"
	keyCodec        = "codec"
	keyLogLevel     = "log.level"
	keyLogFormat    = "log.format"
	keyMetricsAddr  = "metrics.addr"
	keyQueryTimeout = "feature_service.timeout"
	keyQueryWorkers = "feature_service.workers"
	envPrefix       = "ARCGIS"
)

var overlayKeys = []string{
	keyAPIKey,
	keyLicense,
	keyCodec,
	keyLogLevel,
	keyLogFormat,
	keyMetricsAddr,
	keyQueryTimeout,
	keyQueryWorkers,
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return newRootCmd(viper.New()).Execute()
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:   "arcgisd",
		Short: "ArcGIS plugin bridge host",
		Long: `arcgisd hosts the ArcGIS plugin bridge. It reads newline-delimited
JSON frames on stdin, dispatches them to the plugin's channels and writes
replies and host-bound calls to stdout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String(keyConfig, "", "config file (default is ./arcgis.yaml)")
	_ = v.BindPFlag(keyConfig, root.PersistentFlags().Lookup(keyConfig))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range overlayKeys {
		_ = v.BindEnv(key)
	}

	root.AddCommand(newServeCmd(v))
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig reads the config file and applies the flag and env overlay.
func loadConfig(v *viper.Viper) (*config.Resolved, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := v.GetString(keyConfig); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.LoadOptional(".")
	}
	if err != nil {
		return nil, err
	}
	applyOverlay(v, cfg)
	return cfg.Resolve()
}

func applyOverlay(v *viper.Viper, cfg *config.Config) {
	if v.IsSet(keyAPIKey) {
		cfg.APIKey = v.GetString(keyAPIKey)
	}
	if v.IsSet(keyLicense) {
		cfg.License = v.GetString(keyLicense)
	}
	if v.IsSet(keyCodec) {
		cfg.Codec = v.GetString(keyCodec)
	}
	if v.IsSet(keyLogLevel) {
		cfg.Log.Level = v.GetString(keyLogLevel)
	}
	if v.IsSet(keyLogFormat) {
		cfg.Log.Format = v.GetString(keyLogFormat)
	}
	if v.IsSet(keyMetricsAddr) {
		cfg.Metrics.Addr = v.GetString(keyMetricsAddr)
	}
	if v.IsSet(keyQueryTimeout) {
		cfg.FeatureService.Timeout = v.GetString(keyQueryTimeout)
	}
	if v.IsSet(keyQueryWorkers) {
		cfg.FeatureService.Workers = v.GetInt(keyQueryWorkers)
	}
}
