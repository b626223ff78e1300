package inbox

import (
	"io"

	"go.uber.org/zap"

	"github.com/jwalitptl/contract-admin/pkg/notifyclient"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds an inbox from client configuration. A non-empty CachePath
// keeps history in SQLite; otherwise it lives in memory. The returned
// closer releases the store and must be called after Inbox.Close.
func Open(cfg notifyclient.Config, api API, logger *zap.Logger) (*Inbox, io.Closer, error) {
	var (
		kv     KV        = NewMemoryKV()
		closer io.Closer = nopCloser{}
	)
	if cfg.CachePath != "" {
		store, err := NewSQLiteKV(cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
		kv, closer = store, store
	}

	ib := New(api, Options{
		InitDelay: cfg.InitDelay,
		HistoryKV: kv,
		Logger:    logger,
	})
	return ib, closer, nil
}
