package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyMakeBorder(t *testing.T) {
	src := FromFloat32([]float32{1, 2, 3, 4}, 2, 2)

	cases := []struct {
		name string
		typ  int
		want []float32
	}{
		{"constant", BorderConstant, []float32{
			9, 9, 9, 9,
			9, 1, 2, 9,
			9, 3, 4, 9,
			9, 9, 9, 9,
		}},
		{"replicate", BorderReplicate, []float32{
			1, 1, 2, 2,
			1, 1, 2, 2,
			3, 3, 4, 4,
			3, 3, 4, 4,
		}},
		{"reflect", BorderReflect, []float32{
			4, 3, 4, 3,
			2, 1, 2, 1,
			4, 3, 4, 3,
			2, 1, 2, 1,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := CopyMakeBorder(src, 1, 1, 1, 1, tc.typ, 9, nil)
			require.Equal(t, 4, out.W)
			require.Equal(t, 4, out.H)
			assert.Equal(t, tc.want, out.ToFloat32())
		})
	}
}

func TestCopyMakeBorderInt8(t *testing.T) {
	src := QuantizeFloat32ToInt8(FromFloat32([]float32{1, 2}, 2, 1, 1), 1, nil)
	out := CopyMakeBorder(src, 0, 0, 1, 0, BorderConstant, -3, nil)
	assert.Equal(t, []int8{-3, 1, 2}, out.Int8s()[:3])
}

func TestCopyMakeBorderPerChannel(t *testing.T) {
	src := FromFloat32([]float32{1, 2}, 1, 1, 2)
	out := CopyMakeBorderPerChannel(src, 0, 0, 1, 0, BorderConstant, func(q int) float32 { return float32(10 * (q + 1)) }, nil)
	assert.Equal(t, []float32{10, 1, 20, 2}, out.ToFloat32())
}
