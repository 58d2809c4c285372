package catalogstore

import (
	"bytes"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/dreamware/shardcatalog/internal/keycodec"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

const timeLayout = time.RFC3339Nano

func compareBytes(a, b []byte) int { return bytes.Compare(a, b) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

func parseKeyType(v int) keycodec.KeyType { return keycodec.KeyType(v) }

func isUniqueConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func requireRowAffected(res sql.Result, cat shardmaperr.Category, code shardmaperr.Code, noun string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return shardmaperr.Wrap(cat, shardmaperr.CodeStorageOperationFailure, "check rows affected", err)
	}
	if n == 0 {
		return shardmaperr.New(cat, code, noun+" does not exist")
	}
	return nil
}
