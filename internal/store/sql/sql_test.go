package sql

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/moralgraph/internal/store"
	"github.com/agenthands/moralgraph/internal/store/storetest"
)

var dbSeq atomic.Int64

func newSQLite(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:moralgraph_%d?mode=memory&cache=shared", dbSeq.Add(1))
	s, err := Open("sqlite", dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newSQLite(t) })
}

func TestActiveRunIndexRejectsSecondRun(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	g, err := s.CreateGeneration(ctx)
	require.NoError(t, err)

	_, err = s.CreateRun(ctx, g.ID)
	require.NoError(t, err)

	// Bypass ActiveRun and go straight to the table.
	err = s.db.Create(&runRow{GenerationID: g.ID, State: "IN_PROGRESS"}).Error
	assert.Error(t, err)

	err = s.db.Create(&runRow{GenerationID: g.ID, State: "FINISHED"}).Error
	assert.NoError(t, err)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("mysql", "", nil)
	assert.Error(t, err)
}
