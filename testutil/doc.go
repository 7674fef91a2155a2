// Package testutil provides graph fixtures and test doubles shared by the
// package tests.
//
// # Graph Fixtures
//
// HelloGraph and LifecycleGraph are small graphs built from the core profile
// nodes (lifecycle events and debug/log). CycleGraph is a graph that fails
// validation because its flow links form a loop. GraphBuilder assembles
// anything else:
//
//	data := testutil.NewGraphBuilder("demo").
//		Node("start", "lifecycle/onStart").
//		Node("log", "debug/log").
//		Value("log", "text", "hi").
//		Flow("start", "flow", "log", "flow").
//		MustJSON()
//
// # Test Doubles
//
// MockPublisher records published messages per subject and satisfies the
// logging publisher interface without a NATS server. It is safe for concurrent
// use, so tests can poll it while an event loop publishes:
//
//	pub := testutil.NewMockPublisher()
//	logger := logging.NewLogger(slog.Default(), logging.WithPublisher(pub))
//	testutil.WaitForMessageCount(t, pub, "logs.demo.log", 1, time.Second)
//
// Tests needing a real broker use testcontainers behind the integration
// build tag instead.
package testutil
