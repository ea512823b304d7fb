package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

type fakeResult struct {
	rows int64
	err  error
}

func (f fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (f fakeResult) RowsAffected() (int64, error) { return f.rows, f.err }

func TestRequireRow(t *testing.T) {
	require.NoError(t, requireRow(fakeResult{rows: 1}, "storage.SaveMarket 1"))

	err := requireRow(fakeResult{}, "storage.SaveMarket 1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	driverErr := errors.New("driver gone")
	err = requireRow(fakeResult{err: driverErr}, "storage.SaveOracle 7")
	assert.ErrorIs(t, err, driverErr)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "storage.SaveOracle 7")
}
