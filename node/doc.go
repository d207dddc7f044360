// Package node is the dispatch core of a Cyphal/CAN node.
//
// Handlers embed Subscriber (message subjects) or ServiceSubscriber
// (request/response services) and are registered at start-of-day into a
// fixed-capacity Registry. Every transfer reassembled by the transport is
// passed to Registry.Route, which dispatches it to the single handler bound
// to the transfer's port. The package also provides the mandatory node
// services: Heartbeat ingestion, GetInfo and ExecuteCommand.
//
// Nothing in this package is safe for concurrent use. All calls are expected
// to happen on the goroutine that runs the node's periodic tick.
package node
