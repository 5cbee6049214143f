// Package device defines the boundary between the throughput session logic and
// the Bluetooth Low Energy stack that carries it out.
//
// The stack is modelled the way a network co-processor exposes it:
//   - Commands are fire-and-forget calls on a Stack (connect, discover, subscribe, write)
//   - Results arrive later as Events on a single ordered stream
//   - Handles (connection, service, characteristic, timer) are opaque small integers
//
// The package holds no state of its own. Concrete stacks live in sub-packages
// (see go-ble) and test doubles live in internal/testutils.
package device
