// Copyright (c) PhaseGate Authors.
// Licensed under the MIT License.

/*
Package config provides unified configuration loading for PhaseGate.

Configuration is layered: built-in defaults, then a YAML file, then
environment-variable overrides (PHASEGATE_* by default). The static phase
definitions and authorization rules live here and are validated at load
time; a polling Watcher plus Reloader make them hot-swappable on a running
engine without restarting sessions.
*/
package config
