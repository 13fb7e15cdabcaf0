package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"job-relay/backend/app/db"
	"job-relay/backend/app/repo"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Connect(db.Config{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano()),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	gdb := openTestDB(t)
	return NewJournal(
		NewDeviceService(repo.NewDeviceRepository(gdb)),
		NewAgentLogService(repo.NewAgentLogRepository(gdb)),
		NewCommandLogService(repo.NewAgentCommandRepository(gdb)),
	)
}
