// Package config defines application configuration and loads it from the
// environment and an optional config file, with validation.
package config
