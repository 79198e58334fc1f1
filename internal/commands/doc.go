// Package commands binds chat commands to store and counter operations.
//
// The gateway hands over an Invocation: who typed what in which room, and the
// message being replied to, if any. Handler parses the command, checks admin
// rights for the administrative commands, calls the store or the counter
// machine and returns a Markdown Reply. RenderHTML turns a reply into the HTML
// body the gateway sends alongside the plain text.
//
// # Commands
//
//	register_smelly_channel [room]   admin  register an increment channel
//	register_shower_channel [room]   admin  register a decrement channel
//	set_smelly_count <user> <count>  admin  override a user's count
//	list_smelly_boys                        leaderboard of positive counts
//	passwords                               the password ledger
//	register_password                       (as a reply) add the replied-to message
//	remove_password                         (as a reply) remove the replied-to message
//	help                                    list commands
//
// Store failures are returned as errors so the gateway can report the command
// as failed; a command never claims success for a write that did not persist.
package commands
