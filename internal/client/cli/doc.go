// Package cli is the fieldseal device command line.
//
// Every command opens the device store, runs one operation against it and
// exits. "fieldseal daemon" keeps the sync loop, connectivity watcher and
// archive scheduler running until interrupted. Global configuration (server
// address, database path, retry policy) is read by the config package before
// cobra sees the arguments.
package cli
