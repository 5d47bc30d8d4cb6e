package benchmarks

import (
	"context"
	"testing"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/executor"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/plan"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/scheduler"
)

var noop = executor.Func(func(context.Context, executor.Request) (any, error) {
	return "ok", nil
})

func benchmarkExecute(b *testing.B, p *plan.Plan, opts ...scheduler.Option) {
	opts = append(opts, scheduler.WithLogger(nil))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = scheduler.Execute(context.Background(), p, nil, noop, opts...)
	}
}

// BenchmarkExecute_Linear_10 runs a 10-node chain.
func BenchmarkExecute_Linear_10(b *testing.B) {
	benchmarkExecute(b, mustCompile(linearDoc(10)))
}

// BenchmarkExecute_Linear_100 runs a 100-node chain.
func BenchmarkExecute_Linear_100(b *testing.B) {
	benchmarkExecute(b, mustCompile(linearDoc(100)))
}

// BenchmarkExecute_ForkJoin_50_Limit1 runs 50 branches one node per wave.
func BenchmarkExecute_ForkJoin_50_Limit1(b *testing.B) {
	benchmarkExecute(b, mustCompile(forkJoinDoc(50, 2)), scheduler.WithConcurrency(1))
}

// BenchmarkExecute_ForkJoin_50_Limit8 runs 50 branches eight nodes per wave.
func BenchmarkExecute_ForkJoin_50_Limit8(b *testing.B) {
	benchmarkExecute(b, mustCompile(forkJoinDoc(50, 2)), scheduler.WithConcurrency(8))
}

// BenchmarkExecute_Echo runs the built-in echo handler through the local
// backend.
func BenchmarkExecute_Echo(b *testing.B) {
	p := mustCompile(forkJoinDoc(10, 3))
	local := executor.NewLocal()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = scheduler.Execute(context.Background(), p, nil, local, scheduler.WithLogger(nil))
	}
}
