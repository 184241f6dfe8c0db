// Package config loads runtime configuration for the fieldseal device CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. ".yaml"/".yml" files
//     are read as YAML, anything else as JSON.
//  3. Secrets from the environment, after loading an optional .env file:
//     FIELDSEAL_DEVICE_TOKEN, FIELDSEAL_LEGACY_HMAC_SECRET, FIELDSEAL_AMQP_URL.
//  4. Command-line flags (see parseFlags).
//
// Supported flags
//
//	-a string   address:port of the backend gRPC endpoint
//	-d string   path of the local SQLite store
//	-w string   workspace id
//	-i int      online check interval (seconds)
//	-p int      queue processing interval (seconds)
//	-m int      max retries before an action is escalated
//	-k string   PEM public key used to verify seals offline
//	-l string   log level (debug, info, warn, error)
//
// # File schema
//
// Durations use timex.Duration, so they can be strings like "3s" or integer
// nanoseconds:
//
//	server_addr: 127.0.0.1:50051
//	database_path: fieldseal.db
//	workspace_id: ws-1
//	retry_base_delay: 2s
//	sealable_statuses: [submitted]
package config
