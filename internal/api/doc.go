// Package api defines the operation surface of the daemon and its DTOs.
//
// IPC handlers and CLI commands both speak these types, so the wire shape
// stays identical no matter which front end issued the command. The Service
// owns read paths and operator decisions; the Observer owns inbound
// observations from the listening client.
package api
