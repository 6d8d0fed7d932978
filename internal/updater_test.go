package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionBehind(t *testing.T) {
	cases := []struct {
		current string
		latest  string
		want    bool
	}{
		{"1.0.0", "1.0.1", true},
		{"1.0.0", "1.1.0", true},
		{"1.0.0", "2.0.0", true},
		{"1.2.3", "1.2.3", false},
		{"2.0.0", "1.9.9", false},
		{"v1.0.0", "v1.0.1", true},
		{"1.0", "1.0.1", true},
		{"1.0.0-rc1", "1.0.0", false},
		{"1.0.0+build5", "1.0.1", true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, versionBehind(tc.current, tc.latest),
			"current=%s latest=%s", tc.current, tc.latest)
	}
}
