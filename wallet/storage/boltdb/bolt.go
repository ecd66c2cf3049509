// Package boltdb is a KeysetStore on a single bbolt file.
package boltdb

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cashewallet/cashew/crypto"
	"github.com/cashewallet/cashew/wallet/storage"
	bolt "go.etcd.io/bbolt"
)

const keysetsBucket = "keysets"

type BoltDB struct {
	bolt *bolt.DB
}

func InitBolt(path string) (*BoltDB, error) {
	dbpath := filepath.Join(path, "wallet.db")
	db, err := bolt.Open(dbpath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("error setting bolt db: %v", err)
	}

	boltdb := &BoltDB{bolt: db}
	if err := boltdb.initWalletBuckets(); err != nil {
		return nil, fmt.Errorf("error setting bolt db: %v", err)
	}

	return boltdb, nil
}

func (db *BoltDB) initWalletBuckets() error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(keysetsBucket))
		return err
	})
}

func (db *BoltDB) SaveKeyset(keyset *crypto.WalletKeyset) error {
	jsonKeyset, err := json.Marshal(keyset)
	if err != nil {
		return fmt.Errorf("invalid keyset: %v", err)
	}

	return db.bolt.Update(func(tx *bolt.Tx) error {
		keysetsb := tx.Bucket([]byte(keysetsBucket))
		mintBucket, err := keysetsb.CreateBucketIfNotExists([]byte(keyset.MintURL))
		if err != nil {
			return err
		}
		return mintBucket.Put([]byte(keyset.Id), jsonKeyset)
	})
}

func (db *BoltDB) GetKeyset(mintURL, id string) (*crypto.WalletKeyset, error) {
	var keyset *crypto.WalletKeyset

	err := db.bolt.View(func(tx *bolt.Tx) error {
		keysetsb := tx.Bucket([]byte(keysetsBucket))
		mintBucket := keysetsb.Bucket([]byte(mintURL))
		if mintBucket == nil {
			return storage.ErrKeysetNotFound
		}

		keysetBytes := mintBucket.Get([]byte(id))
		if keysetBytes == nil {
			return storage.ErrKeysetNotFound
		}

		keyset = &crypto.WalletKeyset{}
		return json.Unmarshal(keysetBytes, keyset)
	})
	if err != nil {
		return nil, err
	}

	return keyset, nil
}

func (db *BoltDB) GetKeysets() (crypto.KeysetsMap, error) {
	keysets := make(crypto.KeysetsMap)

	err := db.bolt.View(func(tx *bolt.Tx) error {
		keysetsb := tx.Bucket([]byte(keysetsBucket))

		return keysetsb.ForEachBucket(func(mintURL []byte) error {
			mintKeysets := make(map[string]crypto.WalletKeyset)
			mintBucket := keysetsb.Bucket(mintURL)

			err := mintBucket.ForEach(func(id, v []byte) error {
				var keyset crypto.WalletKeyset
				if err := json.Unmarshal(v, &keyset); err != nil {
					return err
				}
				mintKeysets[string(id)] = keyset
				return nil
			})
			if err != nil {
				return err
			}

			keysets[string(mintURL)] = mintKeysets
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return keysets, nil
}

func (db *BoltDB) Close() error {
	return db.bolt.Close()
}
