package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_encodeKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{
			name: "unreserved characters stay literal",
			key:  "Archive-2026_v1.bin~",
			want: "Archive-2026_v1.bin~",
		},
		{
			name: "slashes and spaces",
			key:  "objects/archive v1.bin",
			want: "objects%2Farchive%20v1.bin",
		},
		{
			name: "reserved characters that looser escapers keep literal",
			key:  "a$b&c+d:e=f@g",
			want: "a%24b%26c%2Bd%3Ae%3Df%40g",
		},
		{
			name: "non-ASCII bytes",
			key:  "ünïcode",
			want: "%C3%BCn%C3%AFcode",
		},
		{
			name: "empty key",
			key:  "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeKey(tt.key))
		})
	}
}
