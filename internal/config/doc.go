// Package config loads, normalizes, and validates distill configuration.
//
// Configuration lives in a single TOML file (default
// ~/.config/distill/config.toml). Every field has a usable default so the
// daemon can start with an empty file; Load applies defaults first, then the
// file contents, then normalization (path expansion) and validation.
package config
