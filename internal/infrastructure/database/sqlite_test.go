package database

import (
	"path/filepath"
	"testing"

	"pairelay/internal/config"
	"pairelay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCreatesStoreAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "relay.db")

	db, err := Init(&config.DatabaseConfig{Path: path})
	require.NoError(t, err)
	defer Close(db)

	assert.True(t, db.Migrator().HasTable(&model.Message{}))

	// a write survives the round trip
	msg := &model.Message{
		ID:          "boot-1",
		Sender:      "Bob",
		Content:     "hello",
		MessageType: model.TypeText,
		Priority:    model.PriorityNormal,
		Direction:   model.DirectionOutbox,
		Status:      model.StatusPending,
	}
	require.NoError(t, db.Create(msg).Error)

	var got model.Message
	require.NoError(t, db.First(&got, "id = ?", "boot-1").Error)
	assert.Equal(t, "hello", got.Content)
}

func TestCloseReleasesConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")

	db, err := Init(&config.DatabaseConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, Close(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Error(t, sqlDB.Ping())
}
