// Package wire owns the binder parcel encoding used for PQ transactions.
//
// Ownership boundary:
//   - typed argument values and their lane widths
//   - parcel writer/reader primitives
//   - request encoding and reply decoding (status word, retval, value)
//
// Parcels are little-endian and carry no type information, so the order and
// types of fields are fixed by the caller's declared spec.
package wire
