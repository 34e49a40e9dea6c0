// Package config describes and loads tile process configurations.
//
// A ProcessConfig names the grid, zoom range, processing mode, output driver
// and per-process parameters of one tile pyramid run. Parameters may carry
// zoom conditions in their keys ("dem_file>=10", "smoothing<=5"); ZoomParams
// resolves them into flat per-zoom snapshots.
//
// Loading uses Viper with YAML files and environment variable overrides:
//
//	cfg, err := config.LoadProcess("hillshade")
//
// Environment variables override file values using underscore-separated
// paths (e.g. OUTPUT_DRIVER, LOGGING_LEVEL).
package config
