// Package watch implements pqctl's live view of a running daemon: the
// outcome of every PQ call, the last replay and incoming setting changes,
// read from the daemon's HTTP event stream.
package watch
