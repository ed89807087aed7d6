package storage

import (
	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/adforge/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

// NewStorageManager creates the Badger storage manager from config
func NewStorageManager(logger arbor.ILogger, config *common.Config) (*badger.Manager, error) {
	return badger.NewManager(logger, &config.Storage.Badger)
}
