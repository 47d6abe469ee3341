// Package scheduler is the polling loop that fires registered posts.
//
// Every tick lists all records, restores each trigger, and for every trigger
// whose Check reports a crossing it performs the post, advances the trigger
// and writes the new blob back. Ticks never overlap: the next one is
// scheduled only after the current one has finished.
//
// Failures stay local to a record. A blob that cannot be restored is skipped,
// a failed delivery is logged and the trigger is still advanced so it does not
// fire again, and a failed listing turns the tick into a no-op.
package scheduler
