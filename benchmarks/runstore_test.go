package benchmarks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/runstore"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/scheduler"
)

func benchRecord(b *testing.B) *runstore.Record {
	b.Helper()
	run, err := scheduler.Execute(context.Background(), mustCompile(forkJoinDoc(20, 2)), nil, noop,
		scheduler.WithLogger(nil), scheduler.WithRunID("bench-run"))
	if err != nil {
		b.Fatal(err)
	}
	rec, err := runstore.NewRecord(run)
	if err != nil {
		b.Fatal(err)
	}
	return rec
}

// BenchmarkMemoryStore_Save measures an in-memory record save.
func BenchmarkMemoryStore_Save(b *testing.B) {
	store := runstore.NewMemoryStore()
	rec := benchRecord(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Save(ctx, rec)
	}
}

// BenchmarkSQLiteStore_Save measures a SQLite upsert.
func BenchmarkSQLiteStore_Save(b *testing.B) {
	ctx := context.Background()
	store, err := runstore.NewSQLiteStore(ctx, filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	rec := benchRecord(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Save(ctx, rec)
	}
}

// BenchmarkSQLiteStore_Load measures a SQLite record load.
func BenchmarkSQLiteStore_Load(b *testing.B) {
	ctx := context.Background()
	store, err := runstore.NewSQLiteStore(ctx, filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	rec := benchRecord(b)
	if err := store.Save(ctx, rec); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Load(ctx, rec.RunID)
	}
}

// BenchmarkRecord_Encode measures serializing a finished run.
func BenchmarkRecord_Encode(b *testing.B) {
	run, err := scheduler.Execute(context.Background(), mustCompile(forkJoinDoc(20, 2)), nil, noop,
		scheduler.WithLogger(nil))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = runstore.NewRecord(run)
	}
}
