package config

import (
	"flag"

	"github.com/Faultbox/waypath/pkg/walkmap"
)

var (
	flagConfig       = flag.String("config", "", "Path to config file")
	flagEnvFile      = flag.String("env", ".env", "Path to dotenv file with WAYPATH_* overrides")
	flagDebug        = flag.Bool("debug", false, "Enable debug logging")
	flagMetric       = flag.String("metric", "", "Color distance metric: rgb, pairwise or lab")
	flagThreshold    = flag.Float64("threshold", 0, "Color distance threshold")
	flagOpenRoute    = flag.Bool("open-route", false, "Do not route back from the last waypoint to the first")
	flagDeferRebuild = flag.Bool("defer-rebuild", false, "Rebuild the walkability grid only before path computation")
	flagAddr         = flag.String("addr", "", "HTTP listen address")
	flagDisplayWidth = flag.Int("display-width", 0, "Display surface width")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// EnvFile returns the dotenv path from the --env flag.
func EnvFile() string {
	return *flagEnvFile
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagMetric != "" {
		cfg.Engine.Metric = walkmap.Metric(*flagMetric)
		// A metric switch without an explicit threshold uses that metric's default.
		if *flagThreshold <= 0 {
			cfg.Engine.Threshold = walkmap.DefaultThreshold(cfg.Engine.Metric)
		}
	}
	if *flagThreshold > 0 {
		cfg.Engine.Threshold = *flagThreshold
	}
	if *flagOpenRoute {
		cfg.Engine.CloseLoop = false
	}
	if *flagDeferRebuild {
		cfg.Engine.DeferRebuild = true
	}
	if *flagAddr != "" {
		cfg.Server.Addr = *flagAddr
	}
	if *flagDisplayWidth > 0 {
		cfg.Display.Width = *flagDisplayWidth
	}
}
