// Package obd models the OBD-II side of the bridge: the typed command
// catalog, the unit-carrying value model and the decoders that turn raw
// bus responses into values.
//
// It also defines the Connection capability the supervisor drives. The
// concrete ELM327 implementation lives in package elm327; the core only
// depends on the interface.
//
// # Payload contract
//
// Decoders receive the full message payload of a response, including the
// two-byte prefix (service echo and PID echo, e.g. 0x61 0x29 for a mode 0x21
// request of PID 0x29). Every decoder skips the prefix through frameData, so
// offsets in the decoder tables below always count from the first data byte.
package obd
