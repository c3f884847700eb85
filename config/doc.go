// Package config loads threatgraph settings from YAML, environment
// variables and command-line overrides, and validates the result.
//
// Precedence, lowest first: Default, the YAML file, THREATGRAPH_* and
// related environment variables, then Options applied by the caller.
package config
