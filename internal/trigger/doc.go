// Package trigger scans platform state and originates notifications:
// expiring compliance records, inactive users, and incomplete profiles.
//
// Each scanner selects candidates, checks delivery history for a cooldown
// hit, then dispatches through notify. Candidates are processed one at a time.
// Cooldown reads and dispatch writes are not atomic across processes; two
// engines running the same scanner concurrently can both send. The cooldown
// window makes that rare and harmless, so no distributed lock is taken.
//
// The engine owns no goroutines. The host schedules runs.
package trigger
