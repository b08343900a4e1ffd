package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowList_Allowed(t *testing.T) {
	al, err := NewAllowList([]string{"185.71.76.0/27", " 77.75.156.11/32", "2a02:5180::/32", ""})
	require.NoError(t, err)

	tests := []struct {
		remote string
		want   bool
	}{
		{"185.71.76.5:443", true},
		{"185.71.76.31", true},
		{"185.71.76.32:443", false},
		{"77.75.156.11:1", true},
		{"77.75.156.12:1", false},
		{"[2a02:5180::1]:8080", true},
		{"[2a02:5181::1]:8080", false},
		{"[::ffff:185.71.76.1]:80", true},
		{"not-an-ip", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			assert.Equal(t, tt.want, al.Allowed(tt.remote))
		})
	}
}

func TestAllowList_EmptyAllowsAll(t *testing.T) {
	al, err := NewAllowList(nil)
	require.NoError(t, err)
	assert.True(t, al.Allowed("8.8.8.8:53"))
}

func TestAllowList_InvalidCIDR(t *testing.T) {
	_, err := NewAllowList([]string{"10.0.0.0/33"})
	assert.Error(t, err)
}
