package dbbadger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
	"github.com/peertrade-network/peertrade-daemon/internal/core/ports"
)

// DbManager holds all the badgerhold stores in a single data structure. Each
// aggregate gets its own store directory so their compaction cycles do not
// interfere.
type DbManager struct {
	TradeStore   *badgerhold.Store
	DisputeStore *badgerhold.Store

	tradeRepository   domain.TradeRepository
	disputeRepository domain.DisputeRepository
}

// NewDbManager opens (or creates if not exists) the badger stores under the
// given base data dir.
func NewDbManager(baseDbDir string, logger badger.Logger) (*DbManager, error) {
	tradeDb, err := createDb(baseDbDir+"/trades", logger)
	if err != nil {
		return nil, fmt.Errorf("opening trades db: %w", err)
	}

	disputeDb, err := createDb(baseDbDir+"/disputes", logger)
	if err != nil {
		return nil, fmt.Errorf("opening disputes db: %w", err)
	}

	db := &DbManager{
		TradeStore:   tradeDb,
		DisputeStore: disputeDb,
	}
	db.tradeRepository = NewTradeRepositoryImpl(db)
	db.disputeRepository = NewDisputeRepositoryImpl(db)
	return db, nil
}

func (d *DbManager) TradeRepository() domain.TradeRepository {
	return d.tradeRepository
}

func (d *DbManager) DisputeRepository() domain.DisputeRepository {
	return d.disputeRepository
}

func (d *DbManager) Close() error {
	if err := d.TradeStore.Close(); err != nil {
		return err
	}
	return d.DisputeStore.Close()
}

// JSONEncode is a custom JSON based encoder for badger
func JSONEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer

	en := json.NewEncoder(&buff)

	err := en.Encode(value)
	if err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for badger
func JSONDecode(data []byte, value interface{}) error {
	var buff bytes.Buffer
	de := json.NewDecoder(&buff)

	_, err := buff.Write(data)
	if err != nil {
		return err
	}

	return de.Decode(value)
}

func createDb(dbDir string, logger badger.Logger) (db *badgerhold.Store, err error) {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	db, err = badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})

	return
}

var _ ports.RepoManager = (*DbManager)(nil)
