// Package config loads, normalizes, and validates carescribe configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GEMINI_API_KEY and OPENROUTER_API_KEY. The Config type centralizes every knob
// the server and CLI need so directories, pipeline limits, and external
// service credentials are discovered in one pass.
package config
