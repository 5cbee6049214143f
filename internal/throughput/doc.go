// Package throughput implements the client side of a BLE throughput test.
//
// A Controller consumes device.Events one at a time and moves a session through
// four phases:
//
//	Scanning -> NegotiatingParameters -> Discovering -> Transmitting
//
// Scanning looks for an advertisement carrying the configured complete local
// name and connects to it. NegotiatingParameters requests the preferred PHY and
// connection parameters and waits until both the MTU and the requested PHY are
// confirmed. Discovering runs a fixed sequence of GATT procedures, one at a
// time, to locate the throughput service and subscribe to its characteristics.
// Transmitting counts received bits and, in the fixed modes, drives the
// peripheral's transmission switch and stops the run on time or on amount.
//
// HandleEvent returns true when a one-shot run has finished and the caller
// should ask the user whether to run again. Loop wires a Controller to an event
// stream and a prompt.
package throughput
