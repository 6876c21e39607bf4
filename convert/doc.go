// Package convert turns untrusted input files into ZISK envelopes.
//
// A source file is selected by extension through an immutable Registry,
// parsed into the closed Value model and serialized into an envelope
// payload in one of the Mode encodings. Binary (.bin) sources are copied
// through unchanged.
//
// Every parser and serializer bounds nesting at MaxDepth and reports
// failures as *Error with a Kind and, where the parser knows it, a line
// and column.
//
// Destination files are written atomically. Concurrent conversions that
// target the same destination path are not arbitrated: callers choose
// distinct destinations per job.
package convert
