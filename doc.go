// Package ftpclient is the protocol engine that drives a long-lived
// FTP/FTPS/FTPES control connection through a pipeline of nested operations:
// login, directory change, listing, upload/download, deletion, renaming,
// permission change, directory creation/removal, and raw commands.
//
// An Engine holds the process-wide stores (server capabilities, directory
// cache, path cache) shared by every connection; a ControlSocket owns one
// connection's protocol state and dispatches a LIFO stack of OpData
// operations against it. The host drives the engine by constructing an
// Engine, dialing a ControlSocket with Connect, and then calling the
// command methods in commands.go (List, ChangeDir, Download, Upload,
// Delete, Mkdir, RemoveDir, Rename, Chmod, RawCommand) one at a time; every
// call blocks the goroutine that made it until the operation's Status is
// known, while the engine's own read loop, transfer socket and keep-alive
// timer run concurrently underneath.
//
// Host-visible events (log lines, status changes, prompts for file
// collisions, TLS trust decisions and interactive credentials) are
// delivered through the Notifier interface a caller supplies to
// NewControlSocket; nothing in this package assumes a particular UI.
package ftpclient
