// Package bus dispatches commands and queries to exactly one handler.
//
// Handlers are registered once, at construction, keyed by the message name:
//
//	b, err := bus.New(uow, []bus.Registration{
//		bus.Command(svc.CreateUser),
//		bus.Query(svc.GetUser),
//	}, bus.WithMetrics(metrics))
//
// Registering the same message twice fails New. Routes call Require at
// startup for every message they dispatch so a missing handler is a startup
// error and never a request-time one.
//
// Dispatch runs command handlers inside UnitOfWork.RunInTx and query
// handlers without a transaction. Handler errors are returned unchanged.
package bus
