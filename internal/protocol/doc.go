// Package protocol owns the authpipe wire contract.
//
// Ownership boundary:
// - error taxonomy (configuration / protocol / authentication)
// - limits applied to attacker-controlled length fields
// - header and frame primitives (see package frame)
//
// Wire layout, all integers little-endian uint16:
//
//	header: chunk_size | public_key_len | public_key
//	frame*: signature_len | signature | payload
//
// Payloads are exactly chunk_size bytes except the final frame, which may be
// shorter but is never empty. A stream that carried no input has no header.
package protocol
