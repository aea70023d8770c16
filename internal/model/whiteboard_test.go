package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidActionType(t *testing.T) {
	assert.True(t, ValidActionType(ActionDraw))
	assert.True(t, ValidActionType(ActionErase))
	assert.True(t, ValidActionType(ActionClear))
	assert.False(t, ValidActionType("scribble"))
	assert.False(t, ValidActionType(""))
}

func TestValidColor(t *testing.T) {
	tests := []struct {
		color string
		want  bool
	}{
		{"#000000", true},
		{"#ff00AA", true},
		{"#FFFFFF", true},
		{"ff0000", false},   // missing hash
		{"#ff000", false},   // too short
		{"#ff00001", false}, // too long
		{"#gg0000", false},  // not hex
		{"red", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidColor(tt.color), "color %q", tt.color)
	}
}
