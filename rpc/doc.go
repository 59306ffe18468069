// Package rpc serves a tree to remote clients.
//
// A request is a JSON object naming a node path, an attribute and its arguments:
//
//	{"path": "Top.Dev.Scratch", "attr": "set", "args": [4660]}
//
// The attribute is looked up in a closed dispatch table. The response is the JSON encoding of
// the result, "null" for unknown nodes and malformed requests, or {"error": "..."} when the
// attribute is unknown or the operation fails. With "rawStr" set, a single line string result
// is returned without JSON quoting.
//
// Two special paths exist: "__rootname__" returns the root name and "__structure__" returns the
// YAML structure of the tree.
//
// Server.Handle is transport free. Server.Open additionally serves newline delimited requests
// over TCP, and Client talks to it.
package rpc
