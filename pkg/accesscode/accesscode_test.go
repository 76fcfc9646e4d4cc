package accesscode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sequenceSource struct {
	values []int
	next   int
}

func (s *sequenceSource) Intn(n int) (int, error) {
	v := s.values[s.next%len(s.values)] % n
	s.next++
	return v, nil
}

type brokenSource struct{}

func (brokenSource) Intn(int) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestGenerateUsesInjectedSource(t *testing.T) {
	g := NewGenerator(&sequenceSource{values: []int{0, 4, 2, 9}}, 4)
	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "0429", code)
	code, err = g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "0429", code)
}

func TestGenerateDefaultsLength(t *testing.T) {
	g := NewGenerator(nil, 0)
	code, err := g.Generate()
	require.NoError(t, err)
	assert.Len(t, code, DefaultLength)
	assert.Equal(t, DefaultLength, g.Length())
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9')
	}
}

func TestGenerateCustomLength(t *testing.T) {
	g := NewGenerator(&sequenceSource{values: []int{7}}, 6)
	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "777777", code)
}

func TestGenerateReturnsSourceError(t *testing.T) {
	code, err := NewGenerator(brokenSource{}, 4).Generate()
	require.Error(t, err)
	assert.Empty(t, code)
	assert.Contains(t, err.Error(), "entropy exhausted")
}
