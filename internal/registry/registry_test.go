package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/mir00r/stand-router/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	name string
}

func (f *fakeHandle) Name() string { return f.name }
func (f *fakeHandle) ApplyConfig(domain.ConfigBlob) error { return nil }
func (f *fakeHandle) Describe() domain.BackendDescription { return domain.BackendDescription{Name: f.name, Replicas: 2} }
func (f *fakeHandle) Invoke(context.Context, float64, domain.CorrelationID) (float64, error) {
	return 0, nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	mango := &fakeHandle{name: "MANGO"}

	require.NoError(t, r.Register("MANGO", mango))
	r.Seal()

	h, ok := r.Lookup("MANGO")
	require.True(t, ok)
	assert.Same(t, mango, h)

	_, ok = r.Lookup("DURIAN")
	assert.False(t, ok)
}

func TestRegisterValidation(t *testing.T) {
	r := New()

	assert.ErrorIs(t, r.Register("", &fakeHandle{}), ErrEmptyName)
	assert.ErrorIs(t, r.Register("PEAR", nil), ErrNilHandle)

	require.NoError(t, r.Register("PEAR", &fakeHandle{name: "PEAR"}))
	assert.ErrorIs(t, r.Register("PEAR", &fakeHandle{name: "PEAR"}), ErrAlreadyExists)
}

func TestSealedRegistryRejectsRegistration(t *testing.T) {
	r := New()
	r.Seal()
	r.Seal()

	assert.True(t, r.Sealed())
	assert.ErrorIs(t, r.Register("MANGO", &fakeHandle{name: "MANGO"}), ErrSealed)
	assert.ErrorIs(t, r.RegisterAll([]domain.BackendHandle{&fakeHandle{name: "X"}}), ErrSealed)
}

func TestNamesAreIndependentEntries(t *testing.T) {
	r := New()
	shared := &fakeHandle{name: "FRUIT"}

	// Several names may point at the same kind of backend.
	require.NoError(t, r.Register("PEAR", shared))
	require.NoError(t, r.Register("APPLE", shared))
	r.Seal()

	assert.Equal(t, []string{"APPLE", "PEAR"}, r.Names())
	assert.Equal(t, 2, r.Count())

	names := r.Names()
	names[0] = "mutated"
	assert.Equal(t, "APPLE", r.Names()[0])
}

func TestRegisterAllIsAllOrNothing(t *testing.T) {
	r := New()

	err := r.RegisterAll([]domain.BackendHandle{
		&fakeHandle{name: "MANGO"},
		&fakeHandle{name: "MANGO"},
	})
	require.True(t, errors.Is(err, ErrAlreadyExists))
	assert.Equal(t, 0, r.Count())

	require.NoError(t, r.RegisterAll([]domain.BackendHandle{
		&fakeHandle{name: "MANGO"},
		&fakeHandle{name: "ORANGE"},
	}))
	r.Seal()

	stats := r.GetStats()
	assert.Equal(t, 2, stats["total_backends"])
	assert.Equal(t, 4, stats["total_replicas"])
	assert.Len(t, r.Describe(), 2)
}
