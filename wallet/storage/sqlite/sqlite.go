// Package sqlite is a KeysetStore on sqlite.
package sqlite

import (
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cashewallet/cashew/crypto"
	"github.com/cashewallet/cashew/wallet/storage"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SQLiteDB struct {
	db *sql.DB
}

func InitSQLite(path string) (*SQLiteDB, error) {
	dbpath := filepath.Join(path, "wallet.sqlite.db")
	db, err := sql.Open("sqlite3", dbpath)
	if err != nil {
		return nil, err
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, fmt.Sprintf("sqlite3://%s", dbpath))
	if err != nil {
		return nil, err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &SQLiteDB{db: db}, nil
}

func (sqlite *SQLiteDB) SaveKeyset(keyset *crypto.WalletKeyset) error {
	publicKeys, err := marshalPublicKeys(keyset)
	if err != nil {
		return fmt.Errorf("invalid keyset: %v", err)
	}

	_, err = sqlite.db.Exec(`
	INSERT INTO keysets (id, mint_url, unit, active, public_keys, input_fee_ppk)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (mint_url, id) DO UPDATE SET
	active = excluded.active, public_keys = excluded.public_keys,
	input_fee_ppk = excluded.input_fee_ppk
	`, keyset.Id, keyset.MintURL, keyset.Unit, keyset.Active, publicKeys, keyset.InputFeePpk)

	return err
}

func (sqlite *SQLiteDB) GetKeyset(mintURL, id string) (*crypto.WalletKeyset, error) {
	row := sqlite.db.QueryRow(`
	SELECT id, mint_url, unit, active, public_keys, input_fee_ppk
	FROM keysets WHERE mint_url = ? AND id = ?
	`, mintURL, id)

	keyset, err := scanKeyset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrKeysetNotFound
		}
		return nil, err
	}

	return keyset, nil
}

func (sqlite *SQLiteDB) GetKeysets() (crypto.KeysetsMap, error) {
	rows, err := sqlite.db.Query(`
	SELECT id, mint_url, unit, active, public_keys, input_fee_ppk FROM keysets
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keysets := make(crypto.KeysetsMap)
	for rows.Next() {
		keyset, err := scanKeyset(rows)
		if err != nil {
			return nil, err
		}

		mintKeysets, ok := keysets[keyset.MintURL]
		if !ok {
			mintKeysets = make(map[string]crypto.WalletKeyset)
			keysets[keyset.MintURL] = mintKeysets
		}
		mintKeysets[keyset.Id] = *keyset
	}

	return keysets, rows.Err()
}

func (sqlite *SQLiteDB) Close() error {
	return sqlite.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKeyset(row scanner) (*crypto.WalletKeyset, error) {
	var keyset crypto.WalletKeyset
	var publicKeys string

	err := row.Scan(
		&keyset.Id,
		&keyset.MintURL,
		&keyset.Unit,
		&keyset.Active,
		&publicKeys,
		&keyset.InputFeePpk,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalPublicKeys(&keyset, publicKeys); err != nil {
		return nil, err
	}

	return &keyset, nil
}

func marshalPublicKeys(keyset *crypto.WalletKeyset) (string, error) {
	keys := make(map[uint64]string, len(keyset.PublicKeys))
	for amount, pk := range keyset.PublicKeys {
		keys[amount] = hex.EncodeToString(pk.SerializeCompressed())
	}
	publicKeys, err := json.Marshal(keys)
	if err != nil {
		return "", err
	}
	return string(publicKeys), nil
}

func unmarshalPublicKeys(keyset *crypto.WalletKeyset, publicKeys string) error {
	var keys map[uint64]string
	if err := json.Unmarshal([]byte(publicKeys), &keys); err != nil {
		return err
	}

	parsed, err := crypto.MapPubKeys(keys)
	if err != nil {
		return err
	}
	keyset.PublicKeys = parsed
	return nil
}
