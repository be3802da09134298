// Package config holds the tidekv-cli configuration file
// (~/.tidekv/cli.yaml): the default server, output format, history
// location and named connection profiles.
package config
