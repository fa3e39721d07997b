// Package ipc carries daemon control over JSON-RPC on a Unix domain socket.
//
// The server registers the daemon under the "Cratedig" service name; the
// Client wraps each method so CLI code never touches net/rpc directly. Both
// sides share the DTOs in types.go, which embed the api package's views so
// the IPC wire shape tracks the command surface.
package ipc
