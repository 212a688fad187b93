package participant_test

import (
	"context"
	"testing"

	"github.com/absmach/cohort/participant"
	"github.com/absmach/cohort/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry(t *testing.T) {
	t.Parallel()

	reg, err := participant.NewMemoryRegistry(
		participant.Record{ID: "b", Partition: 1},
		participant.Record{ID: "a", Partition: 0},
	)
	require.NoError(t, err)

	records, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, participant.IDs(records))

	cases := []struct {
		desc string
		rec  participant.Record
		err  error
	}{
		{desc: "register new participant", rec: participant.Record{ID: "c", Partition: 2}},
		{desc: "register duplicate", rec: participant.Record{ID: "a"}, err: errors.ErrEntityExists},
		{desc: "register empty id", rec: participant.Record{}, err: errors.ErrEmptyKey},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := reg.Register(tc.rec)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	require.NoError(t, reg.Deregister("b"))
	assert.ErrorIs(t, reg.Deregister("b"), errors.ErrNotFound)

	records, err = reg.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, participant.IDs(records))
}

func TestMemoryRegistryRejectsDuplicateSeed(t *testing.T) {
	t.Parallel()

	_, err := participant.NewMemoryRegistry(participant.Record{ID: "a"}, participant.Record{ID: "a"})
	assert.ErrorIs(t, err, errors.ErrEntityExists)
}
