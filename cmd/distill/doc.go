// Command distill is the CLI entry point: it runs the analysis daemon in the
// foreground and provides queue, suggestion, learning, and config management
// subcommands against the shared database.
package main
