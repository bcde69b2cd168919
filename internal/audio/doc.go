// Package audio is the miniaudio backend of the engine.
//
// System owns the malgo context. It enumerates endpoints for the device
// catalog, opens the duplex loopback stream and hands out one Player per
// destination device. Nothing else in the module talks to malgo.
package audio
