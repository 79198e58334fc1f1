// Package dedupe tracks recently handled gateway event ids so that events
// redelivered by a sync retry are applied at most once within a window.
package dedupe
