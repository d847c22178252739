// Package main hosts the carescribe CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the HTTP server, processes single media
// or transcript files in the foreground, inspects and exports stored records,
// triggers reprocessing, and scaffolds configuration. It centralizes .env
// loading, configuration resolution, and logger setup so subcommands can
// focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
