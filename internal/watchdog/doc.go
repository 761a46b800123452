// Package watchdog keeps the job table honest. A periodic sweep fails
// active jobs that have shown no forward motion for too long and removes
// job records past their retention time, so a crashed pipeline stage never
// leaves a job parked in an active status forever.
package watchdog
