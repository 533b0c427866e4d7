// Package sse implements the HTTP+SSE transport for the website fetcher MCP
// server.
//
// A client opens a server-push stream with GET on the SSE path. The first
// event on that stream is named "endpoint" and carries the relative URL the
// client must POST its JSON-RPC messages to:
//
//	event: endpoint
//	data: /messages/3f0c9a6e-...
//
// Every response the server produces for the session is then delivered on
// the stream as a "message" event. POSTs are acknowledged with 202 Accepted
// and never carry a JSON-RPC payload themselves.
//
// Inbound messages travel from the POST handler to the session through a
// broker.Broker namespace keyed by the session token. The in-memory broker is
// enough for a single process; the Redis broker lets a POST land on any node
// behind a load balancer.
package sse
