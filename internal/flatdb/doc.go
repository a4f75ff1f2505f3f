// Package flatdb provides an embedded, concurrent-safe store of typed records
// kept in delimited flat files.
//
// # Overview
//
// A [DB] owns a data directory holding one file per table. Each file starts
// with a header line naming the columns, followed by one line per record.
// [Schema] describes a table's columns, their types and which of them form the
// identity tuple. Schemas are either built explicitly with [NewSchema] or
// derived from a struct type with [SchemaFor]; [Table] wraps a [DB] with a
// typed API over such a struct.
//
// # Concurrency
//
// Every table has a process-wide reader-writer lock: queries share it, writes
// hold it exclusively for the whole read-validate-write sequence. Lock waits
// are bounded by [Options.LockTimeout]. Inside the critical section the table
// file also carries an OS advisory lock so that other processes using this
// package on the same directory are serialized too.
//
// # File Format
//
//	id;name;born
//	1;"Ann";19900102
//	2;"B{{DELIM}}o";
//
// Text is quoted, other values are bare. Delimiters and line breaks inside text
// are replaced by reserved tokens. Empty fields are absent values. Rewrites go
// through a synced temporary file renamed over the table, followed by a sync of
// the directory, so a crash leaves either the old or the new table.
package flatdb
