// Package process runs allow-listed external toolchain binaries.
//
// Every invocation moves through
//
//	Pending -> Validated -> Admitted -> Running -> {Completed | TimedOut | Failed | Killed}
//
// Validation checks the program against an immutable allow-list, rejects
// arguments carrying shell metacharacters, confines path arguments to the
// working directory and filters the inherited environment through an
// EnvPolicy. Admission goes through a FIFO Pool that bounds the number of
// live child processes. Children run in their own process group (a new
// process group on Windows) so that timeouts and cancellation reclaim the
// whole tree: a graceful signal first, a forced kill after the grace period.
//
// Output is streamed to the caller's writers and captured up to a fixed
// limit; exceeding it terminates the child. Command lines and stderr are
// redacted before they reach logs or errors.
//
// The executor does not arbitrate the filesystem. Concurrent invocations
// sharing a working directory or output path can race; callers pick
// distinct paths per job.
package process
