package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateServerIDIsTenCharacters(t *testing.T) {
	id := generateServerID()
	assert.Len(t, id, 10)
}

func TestGenerateServerIDVariesAcrossCalls(t *testing.T) {
	assert.NotEqual(t, generateServerID(), generateServerID())
}
