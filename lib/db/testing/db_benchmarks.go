package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
)

// benchDocs is the number of documents written before a read heavy benchmark starts
const benchDocs = 10000

// docKey returns the key of document i in the "bench" namespace
func docKey(i int) string {
	return fmt.Sprintf("bench_%d", i)
}

// docValue returns a small json document
func docValue(i int) []byte {
	return []byte(fmt.Sprintf(`{"id":"%d","name":"doc-%d","tags":["a","b"]}`, i, i))
}

// parallelBenchmark prepares a database and then runs op from all goroutines.
// n is a per goroutine counter, idx a global write index.
type parallelBenchmark struct {
	name     string
	features []db.Feature
	prepare  func(database db.KVDB)
	op       func(database db.KVDB, n int, idx *atomic.Uint64)
}

var parallelBenchmarks = []parallelBenchmark{
	{
		name:     "Set",
		features: []db.Feature{db.FeatureSet},
		op: func(database db.KVDB, n int, idx *atomic.Uint64) {
			database.Set(fmt.Sprintf("bench_new_%d", n), docValue(n), idx.Add(1))
		},
	},
	{
		name:     "SetExisting",
		features: []db.Feature{db.FeatureSet},
		prepare:  fillDocs,
		op: func(database db.KVDB, n int, idx *atomic.Uint64) {
			database.Set(docKey(n%benchDocs), docValue(n), idx.Add(1))
		},
	},
	{
		name:     "SetWithExpiry",
		features: []db.Feature{db.FeatureSetE},
		op: func(database db.KVDB, n int, idx *atomic.Uint64) {
			database.SetE(fmt.Sprintf("session_%d", n), docValue(n), idx.Add(1), deadline(time.Minute))
		},
	},
	{
		name:     "Get",
		features: []db.Feature{db.FeatureSet, db.FeatureGet},
		prepare:  fillDocs,
		op: func(database db.KVDB, n int, _ *atomic.Uint64) {
			database.Get(docKey(n % benchDocs))
		},
	},
	{
		// every second session is already expired
		name:     "GetWithExpiry",
		features: []db.Feature{db.FeatureSetE, db.FeatureGet},
		prepare: func(database db.KVDB) {
			for i := 0; i < benchDocs; i++ {
				var deleteAt int64
				if i%2 == 0 {
					deleteAt = deadline(-time.Second)
				}
				database.SetE(fmt.Sprintf("session_%d", i), docValue(i), uint64(i+1), deleteAt)
			}
		},
		op: func(database db.KVDB, n int, _ *atomic.Uint64) {
			database.Get(fmt.Sprintf("session_%d", n%benchDocs))
		},
	},
	{
		name:     "Delete",
		features: []db.Feature{db.FeatureSet, db.FeatureDelete},
		prepare:  fillDocs,
		op: func(database db.KVDB, n int, idx *atomic.Uint64) {
			database.Delete(docKey(n%benchDocs), idx.Add(1))
		},
	},
	{
		name:     "Has(not)",
		features: []db.Feature{db.FeatureHas},
		op: func(database db.KVDB, _ int, _ *atomic.Uint64) {
			database.Has("bench_missing")
		},
	},
	{
		name:     "MixedUsage",
		features: []db.Feature{db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas},
		prepare:  fillDocs,
		op: func(database db.KVDB, n int, idx *atomic.Uint64) {
			key := docKey(n % benchDocs)
			if n%10 == 0 {
				key = fmt.Sprintf("bench_new_%d", n)
			}
			switch n % 4 {
			case 0:
				database.Get(key)
			case 1:
				database.Set(key, docValue(n), idx.Add(1))
			case 2:
				database.Delete(key, idx.Add(1))
			case 3:
				database.Has(key)
			}
		},
	},
	{
		// one hot index key that is read and rewritten for every document write
		name:     "DocumentSized",
		features: []db.Feature{db.FeatureSet, db.FeatureGet},
		prepare: func(database db.KVDB) {
			database.Set("bench_$dbindex", []byte(`[]`), 1)
		},
		op: func(database db.KVDB, n int, idx *atomic.Uint64) {
			id := rand.Intn(100000)
			database.Get("bench_$dbindex")
			database.Set("bench_$dbindex", []byte(fmt.Sprintf(`[{"model":"m","keys":["%s"]}]`, docKey(id))), idx.Add(1))
			database.Set(docKey(id), docValue(id), idx.Add(1))
		},
	},
}

func fillDocs(database db.KVDB) {
	for i := 0; i < benchDocs; i++ {
		database.Set(docKey(i), docValue(i), uint64(i+1))
	}
}

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	for _, bench := range parallelBenchmarks {
		b.Run(bench.name, func(b *testing.B) {
			runParallel(b, open(b, factory), bench)
		})
	}

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})
}

func runParallel(b *testing.B, database db.KVDB, bench parallelBenchmark) {
	b.Cleanup(func() {
		database.Close()
	})

	for _, feature := range bench.features {
		requireFeature(b, database, feature)
	}

	var idx atomic.Uint64
	idx.Store(benchDocs + 1)
	if bench.prepare != nil {
		bench.prepare(database)
	}

	var worker atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		// spread the goroutines over the key space
		n := int(worker.Add(1)) * benchDocs / 8
		for pb.Next() {
			bench.op(database, n, &idx)
			n++
		}
	})
}

// benchmarkSaveLoad measures snapshots of a filled database.
// Parallelization is not meaningful here as both cover the entire database.
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := open(b, factory)
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureSave|db.FeatureLoad)
	fillDocs(database)

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			database.Save(&buf)
		}
	})

	var snapshot bytes.Buffer
	database.Save(&snapshot)
	data := snapshot.Bytes()

	b.Run("Load", func(b *testing.B) {
		loadDB := open(b, factory)
		defer loadDB.Close()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			loadDB.Load(bytes.NewReader(data))
		}
	})
}
