// Package core contains the shared data model of the researchgraph workflow
// engine: conversation state and checkpoints, retrieved documents and their
// distilled insights, the capability (tool adapter) boundary, stream events
// delivered to clients, and the error taxonomy used by the resilience layer.
//
// The package is deliberately free of orchestration logic; the graph executor,
// stores and adapters all depend on core, never the other way around.
package core
