// Package opensky models the OpenSky Network "states" wire format.
//
// The API returns every aircraft as a fixed-width JSON array of mixed scalars
// rather than an object. This package decodes those arrays into [RawRecord]
// values (a sequence of tagged [Value]s) and then into strongly-typed
// [StateVector] records using a positional field table.
//
// Decoding is best-effort per field: a missing index, an explicit null or a
// value of the wrong kind leaves the corresponding field unset (nil). Only a
// malformed top-level document is reported as an error, via [DecodeError].
//
// The main components are:
//
//   - [Region]: a center and span, convertible to a bounding box
//   - [Value] and [RawRecord]: the undecoded wire representation
//   - [StateVector]: one decoded aircraft state
//   - [States]: one decoded response (timestamp plus state vectors)
//   - [ParseStates]: top-level response parsing
package opensky
