// Package workspace owns the two process-wide directories: the temp root that
// holds one directory per build job, and the shared output directory that holds
// finished packages.
//
// Manager creates and disposes job directories. Janitor bounds the output
// directory by age, either on a cron schedule or as a one-shot sweep.
package workspace
