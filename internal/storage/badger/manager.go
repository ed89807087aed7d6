package badger

import (
	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// Manager owns the Badger connection and the stores built on it
type Manager struct {
	db       *BadgerDB
	agentJob interfaces.AgentJobStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		agentJob: NewAgentJobStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// AgentJobStorage returns the agent job storage interface
func (m *Manager) AgentJobStorage() interfaces.AgentJobStorage {
	return m.agentJob
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
