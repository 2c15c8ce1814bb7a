// Package config provides the configuration of the scan service: worker
// pool sizing, timeouts, working directories, external tool invocations,
// the status store and optional object storage.
//
// Values come from NewConfig defaults, an optional scanpipe.yaml file and
// CLI flags, in that order. Secrets in the file may be stored encrypted
// with the enc: prefix.
package config
