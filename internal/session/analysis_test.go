package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeStub(t *testing.T) {
	inputs := map[string][]byte{
		"nil":   nil,
		"empty": {},
		"pcm":   {0x00, 0x7f, 0x80, 0xff},
		"text":  []byte("RIFF....WAVEfmt "),
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, "EQ rec: Boost 100Hz +3dB", AnalyzeStub(in))
		})
	}
}
