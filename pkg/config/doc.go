// Package config loads RuntimeSettings, the bag of tunables named
// throughout the dispatch, lifecycle and image-resolution components.
// Values come either from cobra/pflag flags (FromFlags) or from a YAML
// file (LoadYAML), each laid over the built-in defaults; the two
// sources are not combined with each other.
package config
