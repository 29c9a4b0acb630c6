// Package cmd implements the command-line interface of dLasso.
//
// The package is organized into several subpackages:
//
//   - lasso: runs the solver workers of one client process
//   - hello: verifies the clock bounds of the stale synchronous protocol
//   - serve: starts a table server hosting shared tables
//   - table: inspects and benchmarks the tables of a running server
//   - util: shared flag and client setup (internal use)
//
// See dlasso -help for a list of all commands.
package cmd
