package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/regionseg/internal/segment"
)

type pts = []segment.Point

func TestPolygonArea(t *testing.T) {
	tests := []struct {
		name string
		in   pts
		want float64
	}{
		{"empty", pts{}, 0},
		{"segment", pts{{X: 0, Y: 0}, {X: 4, Y: 0}}, 0},
		{"unit square", pts{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}, 1},
		{"clockwise square", pts{{X: 0, Y: 0}, {X: 0, Y: 2}, {X: 2, Y: 2}, {X: 2, Y: 0}}, 4},
		{"traced pixel", pts{{X: 1.5, Y: 0.5}, {X: 1.5, Y: 1.5}, {X: 0.5, Y: 1.5}, {X: 0.5, Y: 0.5}}, 1},
		{"L shape", pts{{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 3}, {X: 0, Y: 3}}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PolygonArea(tt.in), 1e-9)
		})
	}
}

func TestPolygonPerimeter(t *testing.T) {
	assert.InDelta(t, 0, PolygonPerimeter(pts{{X: 1, Y: 1}}), 1e-9)
	assert.InDelta(t, 8, PolygonPerimeter(pts{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}), 1e-9)
	assert.InDelta(t, 12, PolygonPerimeter(pts{{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 4}}), 1e-9)
}

func TestSimplifyPolygon(t *testing.T) {
	tests := []struct {
		name    string
		points  pts
		epsilon float64
		want    pts
	}{
		{
			name:    "empty polygon",
			points:  pts{},
			epsilon: 1,
			want:    pts{},
		},
		{
			name:    "triangle is kept",
			points:  pts{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 10}},
			epsilon: 1,
			want:    pts{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 10}},
		},
		{
			name: "collinear edge points removed",
			points: pts{
				{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 10, Y: 0},
				{X: 10, Y: 5}, {X: 10, Y: 10},
				{X: 5, Y: 10}, {X: 0, Y: 10},
				{X: 0, Y: 5},
			},
			epsilon: 0.5,
			want:    pts{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}},
		},
		{
			name:    "zero epsilon copies",
			points:  pts{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}},
			epsilon: 0,
			want:    pts{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SimplifyPolygon(tt.points, tt.epsilon)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSimplifyPolygon_DoesNotAliasInput(t *testing.T) {
	in := pts{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	out := SimplifyPolygon(in, 0.1)
	out[0].X = 42
	assert.InDelta(t, 0, in[0].X, 1e-9)
}

func TestConvexHull(t *testing.T) {
	in := pts{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 0, Y: 2}, {X: 1, Y: 0}, {X: 0, Y: 0}}
	hull := ConvexHull(in)
	require.Len(t, hull, 4)
	assert.ElementsMatch(t, pts{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}, hull)
	assert.InDelta(t, 4, PolygonArea(hull), 1e-9)

	assert.Len(t, ConvexHull(pts{{X: 1, Y: 1}, {X: 1, Y: 1}}), 1)
	assert.Empty(t, ConvexHull(nil))
}

func TestSolidity(t *testing.T) {
	square := pts{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}
	assert.InDelta(t, 1, Solidity(square), 1e-9)

	l := pts{{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 3}, {X: 0, Y: 3}}
	// Hull of the L is the triangle-capped square with area 7.
	assert.InDelta(t, 5.0/7.0, Solidity(l), 1e-9)
	assert.Zero(t, Solidity(pts{{X: 0, Y: 0}, {X: 1, Y: 1}}))
}
