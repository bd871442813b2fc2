package vesting

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVest_Vesting_MemoryStore(t *testing.T) {
	t.Parallel()

	sample := func(total uint64) Schedule {
		return Schedule{Total: total, CliffTime: 100, RampStart: 100, RampEnd: 200}
	}

	t.Run("append assigns sequential indexes", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		store := NewMemoryStore()

		for i := 0; i < 3; i++ {
			index, err := store.Append(ctx, "alice", sample(uint64(i+1)))
			require.NoError(t, err)
			require.Equal(t, i, index)
		}

		schedules, err := store.Schedules(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, schedules, 3)
		require.Equal(t, uint64(2), schedules[1].Total)
	})

	t.Run("unknown beneficiary reads empty", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryStore()

		schedules, err := store.Schedules(t.Context(), "nobody")
		require.NoError(t, err)
		require.Empty(t, schedules)
	})

	t.Run("returned slices are copies", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		store := NewMemoryStore()

		_, err := store.Append(ctx, "alice", sample(10))
		require.NoError(t, err)

		schedules, err := store.Schedules(ctx, "alice")
		require.NoError(t, err)
		schedules[0].Claimed = 99

		again, err := store.Schedules(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, uint64(0), again[0].Claimed)
	})

	t.Run("update bounds check", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		store := NewMemoryStore()

		require.Error(t, store.Update(ctx, "alice", 0, sample(10)))

		_, err := store.Append(ctx, "alice", sample(10))
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, "alice", 0, sample(20)))
		require.Error(t, store.Update(ctx, "alice", 1, sample(20)))
		require.Error(t, store.Update(ctx, "alice", -1, sample(20)))
	})

	t.Run("delete all removes the sequence", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		store := NewMemoryStore()

		_, err := store.Append(ctx, "alice", sample(10))
		require.NoError(t, err)
		require.NoError(t, store.DeleteAll(ctx, "alice"))

		schedules, err := store.Schedules(ctx, "alice")
		require.NoError(t, err)
		require.Empty(t, schedules)
	})
}

func TestVest_Vesting_MemoryStore_WithinTx(t *testing.T) {
	t.Parallel()

	t.Run("commit makes writes visible", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		store := NewMemoryStore()

		err := store.WithinTx(ctx, func(tx ScheduleStore) error {
			if _, err := tx.Append(ctx, "alice", Schedule{Total: 10, RampEnd: 1}); err != nil {
				return err
			}
			_, err := tx.Append(ctx, "bob", Schedule{Total: 20, RampEnd: 1})
			return err
		})
		require.NoError(t, err)

		schedules, err := store.Schedules(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, schedules, 1)
	})

	t.Run("error discards every write", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		store := NewMemoryStore()

		_, err := store.Append(ctx, "alice", Schedule{Total: 10, RampEnd: 1})
		require.NoError(t, err)

		boom := errors.New("boom")
		err = store.WithinTx(ctx, func(tx ScheduleStore) error {
			if _, err := tx.Append(ctx, "alice", Schedule{Total: 20, RampEnd: 1}); err != nil {
				return err
			}
			if err := tx.DeleteAll(ctx, "alice"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		schedules, err := store.Schedules(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, schedules, 1, "rolled-back writes must not be visible")
		require.Equal(t, uint64(10), schedules[0].Total)
	})

	t.Run("writes are invisible until commit", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		store := NewMemoryStore()

		err := store.WithinTx(ctx, func(tx ScheduleStore) error {
			if _, err := tx.Append(ctx, "alice", Schedule{Total: 10, RampEnd: 1}); err != nil {
				return err
			}
			// Reads inside the transaction see the write.
			inside, err := tx.Schedules(ctx, "alice")
			if err != nil {
				return err
			}
			require.Len(t, inside, 1)
			return nil
		})
		require.NoError(t, err)
	})
}
