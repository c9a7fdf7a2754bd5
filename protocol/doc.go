// Package protocol decodes the PSS scoring stream: ASCII, semicolon-delimited
// statements broadcast over UDP by competition-scoring hardware.
//
// A statement is a registered tag followed by fields and a terminating ';':
//
//	pt1;3;                     athlete 1 head point
//	wg1;0;wg2;1;               warnings for both athletes, one statement
//	wrd;rd1;1;rd2;0;rd3;0;     round winners snapshot
//	clk;1:50;stop;             round clock with a trailing flag
//	Udp Port 6000 connected;   link notice, not tag-prefixed
//
// One datagram may hold several statements with no separator other than the
// next tag. Tokenize cuts a payload into Statements using the tag registry,
// Decode maps each Statement to a typed Event or a *DecodeError, and Encode
// renders an Event back to wire form. Parse runs both steps over a payload.
//
// Whitespace around each token, including CR/LF between statements, is
// ignored.
//
// A statement ends only where the next one starts: at a registered tag, a
// link notice, or an unregistered token shaped like a tag (lowercase letters
// then digits, such as zz1). Any other token is a field of the statement
// before it. An unknown tag of a different shape, such as ZZ1 or abc, is
// therefore read as extra fields, and its neighbour is rejected with
// ArityMismatch rather than truncated. Field counts are never used to guess
// where a statement ends.
//
// Events are plain values stamped with the arrival time of their datagram.
// They carry no state; the match package folds them into a match state.
package protocol
