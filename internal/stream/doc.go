// Package stream turns a byte stream into signed frames and back.
//
// An Encoder writes a header carrying its chunk size and public key, then
// one frame per chunk: the signature over the chunk followed by the chunk
// itself. A Decoder parses that wire format, hands the sender's public key
// to a PeerVerifier exactly once, and after approval delivers only payloads
// whose signature checks out under the approved key.
//
// Decoder is push based (bytes arrive through Write) and may suspend while
// the PeerVerifier decides; input arriving during that time is buffered
// and processed in order afterwards. Reader wraps a Decoder as an io.Reader
// over a wire source, and Conn pairs an Encoder and a Reader over one
// transport for duplex use.
//
// Every failure is terminal. After an error no further payload is delivered
// and every later call returns the same error. Errors carry one of the kinds
// in package protocol: ErrConfiguration, ErrProtocol or ErrAuthentication.
package stream
