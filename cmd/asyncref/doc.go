// Package main hosts the asyncref CLI entrypoint and command graph.
//
// The Cobra-based command tree lets host scripts report record mutations,
// drains the queued reference index work on a schedule or on demand, and gives
// operators queue, lock, and configuration maintenance commands. It
// centralizes configuration resolution, store access, and logging setup so
// subcommands stay declarative.
//
// Keep this package lean: add behavior to the internal packages first, then
// surface it through dedicated commands or flags here.
package main
