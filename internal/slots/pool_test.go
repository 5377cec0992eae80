package slots

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotgateway/internal/models"
)

func roster() *Registry {
	return NewRegistry([]Slot{
		{ID: 1, Kind: KindGroq, Credential: "k1"},
		{ID: 2, Kind: KindGroq, Credential: "k2", Reserved: true},
		{ID: 3, Kind: KindGroq, Credential: ""},
		{ID: 4, Kind: KindGroq, Credential: "k4", Model: "groq/compuesto"},
		{ID: 5, Kind: KindHuggingFace, Credential: "hf"},
	}, nil)
}

func TestRegistryKeepsIdentityOfBlankSlots(t *testing.T) {
	reg := roster()

	all := reg.List()
	require.Len(t, all, 5)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ids(all))
	assert.Equal(t, []int{1, 2, 4, 5}, ids(reg.Configured()))

	s3, ok := reg.Get(3)
	require.True(t, ok)
	assert.False(t, s3.Configured())
}

func TestRegistryModelFor(t *testing.T) {
	reg := NewRegistry([]Slot{
		{ID: 1, Kind: KindGroq, Credential: "k1"},
		{ID: 2, Kind: KindGroq, Credential: "k2", Model: "groq/compuesto"},
		{ID: 3, Kind: KindMoonshot, Credential: "k3"},
	}, map[ProviderKind]string{KindGroq: "llama3-70b-8192"})

	assert.Equal(t, "llama3-70b-8192", reg.ModelFor(1))
	assert.False(t, reg.HasOverride(1))
	assert.Equal(t, CompoundModel, reg.ModelFor(2))
	assert.True(t, reg.HasOverride(2))
	assert.Equal(t, "kimi-k2.5", reg.ModelFor(3))
	assert.Equal(t, "", reg.ModelFor(42))
}

func TestDefaultActivationIsFirstSlot(t *testing.T) {
	p := NewPool(roster())

	assert.Equal(t, []int{1}, ids(p.Activated()))
	st := p.Snapshot()
	assert.Equal(t, ModeDefault, st.Mode)
	assert.Nil(t, st.Reservation)
}

func TestSetActivation(t *testing.T) {
	tests := []struct {
		name    string
		spec    ActivationSpec
		want    []int
		wantErr error
	}{
		{name: "all configured", spec: ActivationSpec{All: true}, want: []int{1, 2, 4, 5}},
		{name: "explicit filters blank and unknown", spec: ActivationSpec{Slots: []int{4, 3, 9, 2, 2}}, want: []int{2, 4}},
		{name: "reset", spec: ActivationSpec{Reset: true}, want: []int{1}},
		{name: "empty list rejected", spec: ActivationSpec{Slots: []int{}}, wantErr: ErrEmptyActivation},
		{name: "only blank slots rejected", spec: ActivationSpec{Slots: []int{3, 7}}, wantErr: ErrEmptyActivation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPool(roster())
			require.NoError(t, p.SetActivation(ActivationSpec{Slots: []int{5}}))

			err := p.SetActivation(tt.spec)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Equal(t, []int{5}, ids(p.Activated()), "state must be unchanged")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(p.Activated()))
		})
	}
}

func TestActivationNeverEmpty(t *testing.T) {
	p := NewPool(roster())
	specs := []ActivationSpec{
		{Slots: nil}, {Slots: []int{3}}, {All: true}, {Slots: []int{0, -1}}, {Reset: true}, {Slots: []int{5}},
	}
	for _, s := range specs {
		_ = p.SetActivation(s)
		assert.NotEmpty(t, p.Activated(), "spec %+v left empty set", s)
	}
}

func TestPin(t *testing.T) {
	p := NewPool(roster())

	err := p.Pin(2)
	assert.True(t, errors.Is(err, ErrInvalidReservation), "slot 2 is not activated in default mode")

	require.NoError(t, p.SetActivation(ActivationSpec{All: true}))
	assert.True(t, errors.Is(p.Pin(3), ErrInvalidReservation), "slot 3 has no credential")
	assert.True(t, errors.Is(p.Pin(99), ErrInvalidReservation))

	require.NoError(t, p.Pin(2))
	got, ok := p.Reservation()
	assert.True(t, ok)
	assert.Equal(t, 2, got)

	p.Unpin()
	_, ok = p.Reservation()
	assert.False(t, ok)
}

func TestPinOnlyActivatedSlotWarns(t *testing.T) {
	p := NewPool(roster())

	require.NoError(t, p.Pin(1))
	assert.Empty(t, p.Eligible(models.TaskGeneral).Slots)
	assert.Equal(t, []string{WarnGeneralStarved}, p.Snapshot().Warnings)

	require.NoError(t, p.SetActivation(ActivationSpec{Slots: []int{1, 4}}))
	assert.Empty(t, p.Snapshot().Warnings)
	assert.Len(t, p.Eligible(models.TaskGeneral).Slots, 1)
}

func TestDeactivatingPinnedSlotClearsReservation(t *testing.T) {
	p := NewPool(roster())
	require.NoError(t, p.SetActivation(ActivationSpec{All: true}))
	require.NoError(t, p.Pin(2))

	require.NoError(t, p.SetActivation(ActivationSpec{Slots: []int{1, 4}}))
	_, ok := p.Reservation()
	assert.False(t, ok)
}

func TestResetClearsReservation(t *testing.T) {
	p := NewPool(roster())
	require.NoError(t, p.SetActivation(ActivationSpec{All: true}))
	require.NoError(t, p.Pin(4))

	p.Reset()
	st := p.Snapshot()
	assert.Equal(t, ModeDefault, st.Mode)
	assert.Nil(t, st.Reservation)
}

func TestEligibleGeneralExcludesPinned(t *testing.T) {
	p := NewPool(roster())
	require.NoError(t, p.SetActivation(ActivationSpec{All: true}))
	require.NoError(t, p.Pin(2))

	got := p.Eligible(models.TaskGeneral)
	assert.Equal(t, []int{1, 4, 5}, ids(got.Slots))
	assert.False(t, got.Fallback)
}

func TestEligibleReserved(t *testing.T) {
	t.Run("pinned first then same-kind tagged siblings", func(t *testing.T) {
		p := NewPool(roster())
		require.NoError(t, p.SetActivation(ActivationSpec{All: true}))
		require.NoError(t, p.Pin(4))

		got := p.Eligible(models.TaskReserved)
		assert.Equal(t, []int{4, 2}, ids(got.Slots))
	})

	t.Run("pinned untagged slot stands alone", func(t *testing.T) {
		p := NewPool(roster())
		require.NoError(t, p.SetActivation(ActivationSpec{All: true}))
		require.NoError(t, p.Pin(5))

		got := p.Eligible(models.TaskReserved)
		assert.Equal(t, []int{5}, ids(got.Slots))
	})

	t.Run("activated tagged slots", func(t *testing.T) {
		p := NewPool(roster())
		require.NoError(t, p.SetActivation(ActivationSpec{Slots: []int{1, 2, 5}}))

		got := p.Eligible(models.TaskReserved)
		assert.Equal(t, []int{2}, ids(got.Slots))
		assert.False(t, got.Fallback)
	})

	t.Run("explicit fallback to configured tagged slots", func(t *testing.T) {
		p := NewPool(roster())

		got := p.Eligible(models.TaskReserved)
		assert.Equal(t, []int{2, 4}, ids(got.Slots))
		assert.True(t, got.Fallback)
	})

	t.Run("no tagged slots uses activated set", func(t *testing.T) {
		p := NewPool(NewRegistry([]Slot{
			{ID: 1, Kind: KindGroq, Credential: "a"},
			{ID: 2, Kind: KindGroq, Credential: "b"},
		}, nil))
		require.NoError(t, p.SetActivation(ActivationSpec{All: true}))

		got := p.Eligible(models.TaskReserved)
		assert.Equal(t, []int{1, 2}, ids(got.Slots))
	})
}

func TestPoolConcurrentAccess(t *testing.T) {
	p := NewPool(roster())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = p.SetActivation(ActivationSpec{All: true})
			} else {
				_ = p.SetActivation(ActivationSpec{Slots: []int{1, 2}})
			}
		}(i)
		go func() {
			defer wg.Done()
			for _, s := range p.Eligible(models.TaskGeneral).Slots {
				assert.True(t, s.Configured())
			}
		}()
	}
	wg.Wait()
	assert.NotEmpty(t, p.Activated())
}
