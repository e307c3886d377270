// Package channel implements the application channel table of a USB link.
//
// A link multiplexes up to MaxChannels independent application streams. Each
// occupied slot holds exactly one Handler, created by a Factory for the kind
// requested by the client (camera, config or robot). Empty slots hold nothing;
// traffic addressed to them is dropped by the caller.
//
// Open and Close never fail with a Go error. They report a Status string that
// is sent back to the client verbatim in the control response.
package channel
