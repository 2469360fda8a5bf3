package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/util"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() (db.KVDB, error)

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, open(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, open(t, factory))
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, open(t, factory))
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, open(t, factory))
		})

		t.Run("SetEIfUnset", func(t *testing.T) {
			testSetEIfUnset(t, open(t, factory))
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			testKeyExpiry(t, open(t, factory))
		})

		t.Run("ManyExpiringKeys", func(t *testing.T) {
			testManyExpiringKeys(t, open(t, factory))
		})

		t.Run("GarbageCollect", func(t *testing.T) {
			testGarbageCollect(t, open(t, factory))
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("WriteIdx", func(t *testing.T) {
			testWriteIdx(t, open(t, factory))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, open(t, factory))
		})

		t.Run("CollisionHandling", func(t *testing.T) {
			testCollisionHandling(t, open(t, factory))
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, open(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// open creates a database from the factory and fails the test on error
func open(t testing.TB, factory DBFactory) db.KVDB {
	t.Helper()
	database, err := factory()
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	return database
}

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// deadline returns an absolute deadline d from now
func deadline(d time.Duration) int64 {
	return util.Now() + d.Nanoseconds()
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if err := database.Set(testKey, testValue1, 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	if err := database.Set(testKey, testValue2, 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = database.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	testKey := "delete-test-key"
	testValue := []byte("delete-test-value")

	database.Set(testKey, testValue, 1)

	_, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if err := database.Delete(testKey, 10); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, exists = database.Get(testKey)
	if exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	if database.Has(testKey) {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	// deleting a missing key is a no-op
	if err := database.Delete("nonexistent-key", 11); err != nil {
		t.Errorf("Delete of a missing key failed: %v", err)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureDelete)
	requireFeature(t, database, db.FeatureHas)

	testKey := "has-exists-test-key"
	testValue := []byte("has-exists-test-value")

	if database.Has(testKey) {
		t.Errorf("Expected Has to return false for nonexistent key")
	}

	database.Set(testKey, testValue, 1)

	if !database.Has(testKey) {
		t.Errorf("Expected Has to return true after Set")
	}

	database.Delete(testKey, 2)

	if database.Has(testKey) {
		t.Errorf("Expected Has to return false after Delete")
	}
}

func testStaleWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	testKey := "stale-key"

	database.Set(testKey, []byte("new"), 20)
	// an ignored stale write is not a failure
	if err := database.Set(testKey, []byte("old"), 10); err != nil {
		t.Errorf("stale Set returned an error: %v", err)
	}

	result, _ := database.Get(testKey)
	if !bytes.Equal(result, []byte("new")) {
		t.Errorf("Stale write overwrote newer value, got %s", result)
	}

	// equal index is not stale
	database.Set(testKey, []byte("same"), 20)
	result, _ = database.Get(testKey)
	if !bytes.Equal(result, []byte("same")) {
		t.Errorf("Write with equal index was ignored, got %s", result)
	}
}

func testSetEIfUnset(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetEIfUnset)
	requireFeature(t, database, db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value")
	testValue2 := []byte("test-value2")

	database.SetEIfUnset(testKey, testValue1, 1, deadline(50*time.Millisecond))

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after SetEIfUnset", testKey)
	}

	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.SetEIfUnset(testKey, testValue2, 2, 0)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after second SetEIfUnset", testKey)
	}

	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	time.Sleep(60 * time.Millisecond)

	_, exists = database.Get(testKey)
	if exists {
		t.Errorf("Expected key %s to not exist after deadline", testKey)
	}

	// an expired entry counts as unset
	database.SetEIfUnset(testKey, testValue2, 3, 0)
	result, exists = database.Get(testKey)
	if !exists || !bytes.Equal(result, testValue2) {
		t.Errorf("Expected expired key to be overwritten, got %s (exists=%v)", result, exists)
	}
}

func testKeyExpiry(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureHas)

	testKey := "expiring-key"
	testValue := []byte("expiring-value")

	database.SetE(testKey, testValue, 1, deadline(50*time.Millisecond))

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Key should exist before its deadline (get)")
	}
	if !bytes.Equal(result, testValue) {
		t.Errorf("Expected value %s, got %s", testValue, result)
	}
	if !database.Has(testKey) {
		t.Errorf("Key should exist before its deadline (has)")
	}

	time.Sleep(60 * time.Millisecond)

	if _, exists = database.Get(testKey); exists {
		t.Errorf("Key should have expired (get)")
	}
	if database.Has(testKey) {
		t.Errorf("Key should have expired (has)")
	}

	// a plain Set clears the deadline
	database.SetE(testKey, testValue, 2, deadline(50*time.Millisecond))
	database.Set(testKey, testValue, 3)
	time.Sleep(60 * time.Millisecond)
	if !database.Has(testKey) {
		t.Errorf("Set should overwrite the old deadline")
	}

	testKey3 := "not-expiring-key"
	testValue3 := []byte("not-expiring-value")

	database.SetE(testKey3, testValue3, 4, 0)

	result, exists = database.Get(testKey3)
	if !exists {
		t.Errorf("Key with deadline 0 should never expire")
	}
	if !bytes.Equal(result, testValue3) {
		t.Errorf("Expected value %s, got %s", testValue3, result)
	}
}

func testManyExpiringKeys(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE)
	requireFeature(t, database, db.FeatureGet)

	numKeys := 1000
	short := deadline(30 * time.Millisecond)

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("expire-key-%d", i)
		value := []byte(fmt.Sprintf("expire-value-%d", i))
		var deleteAt int64
		if i%2 == 0 {
			deleteAt = short
		}
		database.SetE(key, value, uint64(i+1), deleteAt)

		if !database.Has(key) {
			t.Errorf("Key %s not found after Set", key)
		}
	}

	time.Sleep(50 * time.Millisecond)

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("expire-key-%d", i)
		_, exists := database.Get(key)
		if i%2 == 0 && exists {
			t.Errorf("Key %s should have expired", key)
		}
		if i%2 == 1 && !exists {
			t.Errorf("Key %s should not have expired", key)
		}
	}
}

func testGarbageCollect(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE)
	requireFeature(t, database, db.FeatureGarbageCollect)

	for i := 0; i < 100; i++ {
		database.SetE(fmt.Sprintf("gc-key-%d", i), []byte("v"), uint64(i+1), deadline(10*time.Millisecond))
	}
	database.Set("gc-keep", []byte("v"), 200)

	// the sweep runs in the background, give it a few intervals
	until := time.Now().Add(2 * time.Second)
	for time.Now().Before(until) {
		if database.GetInfo().Entries == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("Expected 1 live entry after garbage collection, got %d", database.GetInfo().Entries)
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := open(t, factory)
	database2 := open(t, factory)

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureSave)
	requireFeature(t, database, db.FeatureLoad)

	numEntries := 1000
	originalKeys := make([]string, numEntries)
	originalValues := make([][]byte, numEntries)

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		value := []byte(fmt.Sprintf("save-load-test-value-%d", i))
		originalKeys[i] = key
		originalValues[i] = value

		database.Set(key, value, uint64(i+1))
	}
	database.SetE("save-load-expired", []byte("gone"), 5000, util.Now()-1)

	// something that must be replaced by the load
	database2.Set("pre-existing", []byte("value"), 1)

	var buf bytes.Buffer
	err := database.Save(&buf)
	if err != nil {
		t.Errorf("Unexpected error during Save: %v", err)
	}

	err = database2.Load(&buf)
	if err != nil {
		t.Errorf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := originalKeys[i]
		expectedValue := originalValues[i]

		actualValue, exists := database2.Get(key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}

		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	if database2.Has("pre-existing") {
		t.Errorf("Load should replace existing content")
	}
	if database2.Has("save-load-expired") {
		t.Errorf("Expired entries should not be restored")
	}
	if database2.WriteIdx() < uint64(numEntries) {
		t.Errorf("Expected write index >= %d after Load, got %d", numEntries, database2.WriteIdx())
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Expected error when loading invalid data")
	}
}

func testWriteIdx(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.SetWriteIdx(10)
	if database.WriteIdx() != 10 {
		t.Errorf("Expected write index 10, got %d", database.WriteIdx())
	}

	database.SetWriteIdx(5)
	if database.WriteIdx() != 10 {
		t.Errorf("Write index must never decrease, got %d", database.WriteIdx())
	}

	database.Set("idx-key", []byte("v"), 42)
	if database.WriteIdx() != 42 {
		t.Errorf("Expected write index 42 after Set, got %d", database.WriteIdx())
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	emptyKey := ""
	emptyKeyValue := []byte("value for empty key")

	database.Set(emptyKey, emptyKeyValue, 1)

	result, exists := database.Get(emptyKey)
	if !exists {
		t.Errorf("Empty key not found after Set")
	} else if !bytes.Equal(result, emptyKeyValue) {
		t.Errorf("Value mismatch for empty key")
	}

	emptyValueKey := "empty-value-key"
	emptyValue := []byte{}

	database.Set(emptyValueKey, emptyValue, 1)

	result, exists = database.Get(emptyValueKey)
	if !exists {
		t.Errorf("Key for empty value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Empty value mismatch")
	}

	nilValueKey := "nil-value-key"

	database.Set(nilValueKey, nil, 1)

	result, exists = database.Get(nilValueKey)
	if !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	if !t.Failed() {

		largeKey := string(bytes.Repeat([]byte("k"), 1000))
		largeKeyValue := []byte("value for large key")

		database.Set(largeKey, largeKeyValue, 1)

		result, exists = database.Get(largeKey)
		if !exists {
			t.Errorf("Large key not found after Set")
		} else if !bytes.Equal(result, largeKeyValue) {
			t.Errorf("Value mismatch for large key")
		}

		largeValueKey := "large-value-key"
		largeValue := make([]byte, 10*1024*1024)

		for i := range largeValue {
			largeValue[i] = byte(i % 256)
		}

		database.Set(largeValueKey, largeValue, 1)

		result, exists = database.Get(largeValueKey)
		if !exists {
			t.Errorf("Key for large value not found after Set")
		} else if !bytes.Equal(result, largeValue) {
			t.Errorf("Large value mismatch: got %d bytes, expected %d", len(result), len(largeValue))
		}
	}
}

func testCollisionHandling(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	prefix := "collision-test-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		value := []byte(fmt.Sprintf("value-%d", i))

		database.Set(key, value, 1)
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		expectedValue := []byte(fmt.Sprintf("value-%d", i))

		actualValue, exists := database.Get(key)
		if !exists {
			t.Errorf("Key %s not found", key)
			continue
		}

		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value for key %s does not match: expected %s, got %s",
				key, expectedValue, actualValue)
		}
	}

	for i := 0; i < numKeys; i += 2 {
		key := fmt.Sprintf("%s%d", prefix, i)
		database.Delete(key, 10)
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, exists := database.Get(key)

		if i%2 == 0 {
			if exists {
				t.Errorf("Key %s should be deleted", key)
			}
		} else {
			if !exists {
				t.Errorf("Key %s should still exist", key)
			}
		}
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	type operation struct {
		op    string
		key   string
		value []byte
	}

	numOperations := 10_000
	operations := make([]operation, numOperations)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5, 6:
			op = "set"
		case 7, 8:
			op = "get"
		case 9:
			op = "delete"
		}

		var key string
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%50)
		} else {
			key = fmt.Sprintf("key-%d", i)
		}

		var value []byte
		if op == "set" {
			valueSize := 64
			if i%10 == 0 {
				valueSize = 1024
			}
			value = make([]byte, valueSize)

			for j := 0; j < valueSize; j++ {
				value[j] = byte((i + j) % 256)
			}
		}

		operations[i] = operation{op, key, value}
	}

	allKeys := make(map[string]bool)
	for _, op := range operations {
		allKeys[op.key] = true
	}

	numWorkers := 8
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	opsPerWorker := numOperations / numWorkers

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			start := workerId * opsPerWorker
			end := start + opsPerWorker

			for i := start; i < end; i++ {
				op := operations[i]

				switch op.op {
				case "set":
					database.Set(op.key, op.value, uint64(i))
				case "get":
					database.Get(op.key)
				case "delete":
					database.Delete(op.key, uint64(i))
				}
			}
		}(w)
	}

	wg.Wait()

	// after all writers are done, Has and Get must agree for every key
	for key := range allKeys {
		value, exists := database.Get(key)
		if exists != database.Has(key) {
			t.Errorf("Consistency error: Get and Has disagree for key %s", key)
			continue
		}

		if exists {
			again, ok := database.Get(key)
			if !ok || !bytes.Equal(value, again) {
				t.Errorf("Value mismatch for key %s between reads", key)
			}
		}
	}
}
