// Package relay provides bidirectional UDP forwarding between a host
// application and fixed ports on a radio device.
//
// Each Relay owns two sockets:
//   - a server socket bound on the host side, receiving from whichever
//     application endpoint spoke last
//   - a client socket connected to one port on the device
//
// Datagrams received on the server socket are forwarded to the device, and
// the sender is remembered as the return path for device traffic. Datagrams
// received from the device go back to that remembered endpoint. Device
// traffic arriving before any host traffic has no return path and is
// dropped.
//
// # Lifecycle
//
//  1. New resolves addresses, opens both sockets, and applies buffer sizes
//  2. Both forwarding loops start and New returns once they are receiving
//  3. Loops poll their sockets with short deadlines so Stop is noticed
//  4. Stop signals the loops, waits for them to exit, then closes sockets
//
// A Set groups the relays for every channel of one device and fails as a
// unit: if any channel cannot start, none stay running.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package relay
