// Package config handles configuration loading for smellybot.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SMELLYBOT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/smellybot/config.toml
//  3. ~/.config/smellybot/config.toml
//
// Files ending in .yaml or .yml are parsed as YAML; anything else as TOML.
//
// # Environment Variables
//
// A .env file in the working directory is loaded before parsing. Values can
// then reference environment variables:
//
//	[matrix]
//	password = "${SMELLYBOT_PASSWORD}"
//
// # Sections
//
//	[matrix]
//	homeserver   = "https://matrix.org"
//	username     = "smellybot"
//	password     = "${SMELLYBOT_PASSWORD}"
//	recovery_key = ""               # optional, enables E2EE
//
//	[bot]
//	command_prefix  = "!"
//	admins          = ["@me:matrix.org"]
//	allowed_rooms   = []            # empty = all joined rooms
//	presence_source = "call"        # call, membership
//
//	[storage]
//	backend        = "file"         # file, sqlite
//	path           = "db/smelly.db"
//	flush_interval = "0s"           # periodic re-persist; 0 disables
//
//	[logging]
//	level  = "info"                 # debug, info, warn, error
//	format = "text"                 # text, json
package config
