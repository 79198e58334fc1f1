// Package schema defines the on-disk document shapes of the bot's state file
// and the migration from every historical version to the current one.
//
// # Versions
//
// Each version is a strict superset of the previous one:
//
//   - Version 1: channels, users
//   - Version 2: adds decrementChannels (written as showerChannels by early builds)
//   - Version 3: adds passwords
//
// Migration is additive only. Fields a version does not carry are initialized
// to their empty value; nothing is renamed or transformed.
//
// # Decoding
//
// Decode peeks the "version" tag and dispatches to one decoder per version.
// Every decoder funnels into State, the current shape. Decoding either returns
// a complete State or an error:
//
//   - ErrMalformed: the bytes are not a JSON object with a numeric version
//   - ErrUnsupportedVersion: the version tag is not one this build knows
//
// Encode always writes CurrentVersion.
package schema
