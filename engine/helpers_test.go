package engine_test

import (
	"io"
	"log/slog"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/audit"
	"github.com/cybinfo/pg-manager-sub005/engine"
	"github.com/cybinfo/pg-manager-sub005/history"
	"github.com/cybinfo/pg-manager-sub005/notify"
)

// discardLogger silences engine logging in tests.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv bundles an engine with inspectable in-memory collaborators.
type testEnv struct {
	eng      *engine.Engine
	sink     *audit.Memory
	notifier *notify.Memory
	hist     *history.Memory
}

func newTestEnv(opts ...engine.Option) *testEnv {
	env := &testEnv{
		sink:     audit.NewMemory(),
		notifier: notify.NewMemory(),
		hist:     history.NewMemory(),
	}
	base := []engine.Option{
		engine.WithLogger(discardLogger()),
		engine.WithAuditSink(env.sink),
		engine.WithNotifier(env.notifier),
		engine.WithHistoryStore(env.hist),
	}
	env.eng = engine.New(append(base, opts...)...)
	return env
}

func testContext() saga.ExecutionContext {
	return saga.NewExecutionContext("user-1", saga.ActorOwner, "scope-1")
}

func keyedContext(key string) saga.ExecutionContext {
	return testContext().WithIdempotencyKey(key)
}
