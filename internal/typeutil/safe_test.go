package typeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsInt_AcceptsNumericVariants(t *testing.T) {
	v, err := AsInt(5)
	assert.NoError(t, err)
	assert.Equal(t, 5, v)

	v, err = AsInt(int32(7))
	assert.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = AsInt(float64(9))
	assert.NoError(t, err)
	assert.Equal(t, 9, v)
}

func TestAsInt_RejectsOtherTypes(t *testing.T) {
	_, err := AsInt("nope")
	assert.Error(t, err)
}

func TestCopyStringMap_NilPassesThrough(t *testing.T) {
	assert.Nil(t, CopyStringMap(nil))
}

func TestCopyStringMap_IsIndependentCopy(t *testing.T) {
	src := map[string]string{"a": "1"}
	dst := CopyStringMap(src)
	dst["a"] = "2"
	assert.Equal(t, "1", src["a"])
}

func TestCopyBytes_IsIndependentCopy(t *testing.T) {
	src := []byte{1, 2, 3}
	dst := CopyBytes(src)
	dst[0] = 9
	assert.Equal(t, byte(1), src[0])
}
