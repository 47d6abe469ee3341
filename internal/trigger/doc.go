// Package trigger holds the time conditions that decide when a registered post
// fires and how its state moves afterwards.
//
// A Trigger is stored as an opaque JSON blob next to its post. The blob always
// carries a "kind" tag; the Registry maps that tag to the constructor and
// restorer for the kind, so new kinds plug in without touching the scheduler.
//
// All kinds share two rules:
//   - a completed trigger never fires again
//   - a goal instant more than StalenessWindow in the past counts as missed
//
// Calendar math is done in the registry's reference location, never in the
// host's local zone.
package trigger
