package storage

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
)

// Database is the key-value backend holding durable vault records and ledger
// metadata. TrieDB exposes the node database backing the state trie. Trie
// nodes live in memory; the ledger writes committed records through to the
// flat store and replays them when the database is reopened.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// WriteBatch applies every pair or none. The ledger stages all records
	// of one state transition into a single batch so the flat store never
	// holds a partial transition.
	WriteBatch(batch []KV) error
	TrieDB() *triedb.Database
	Close()
}

// KV is one staged key-value pair in a batch write.
type KV struct {
	Key   []byte
	Value []byte
}

func newTrieDB() *triedb.Database {
	return triedb.NewDatabase(rawdb.NewDatabase(memorydb.New()), triedb.HashDefaults)
}

// MemDB is an in-memory Database used by tests and throwaway ledgers.
type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	trieDB *triedb.Database
}

func NewMemDB() *MemDB {
	return &MemDB{
		data:   make(map[string][]byte),
		trieDB: newTrieDB(),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, fmt.Errorf("storage: key not found")
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) WriteBatch(batch []KV) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, kv := range batch {
		db.data[string(kv.Key)] = append([]byte(nil), kv.Value...)
	}
	return nil
}

func (db *MemDB) TrieDB() *triedb.Database {
	return db.trieDB
}

func (db *MemDB) Close() {}

// LevelDB is the persistent Database backend.
type LevelDB struct {
	db     *leveldb.DB
	trieDB *triedb.Database
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db, trieDB: newTrieDB()}, nil
}

func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	return ldb.db.Get(key, nil)
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

func (ldb *LevelDB) WriteBatch(batch []KV) error {
	b := new(leveldb.Batch)
	for _, kv := range batch {
		b.Put(kv.Key, kv.Value)
	}
	return ldb.db.Write(b, nil)
}

func (ldb *LevelDB) TrieDB() *triedb.Database {
	return ldb.trieDB
}

func (ldb *LevelDB) Close() {
	ldb.db.Close()
}
