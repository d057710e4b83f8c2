package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "blank", input: "  ", expected: nil},
		{name: "single broker", input: "kafka:9092", expected: []string{"kafka:9092"}},
		{name: "trims and drops empties", input: " a:9092 ,, b:9092 ,", expected: []string{"a:9092", "b:9092"}},
		{name: "dedupes keeping order", input: "b,a,b,a", expected: []string{"b", "a"}},
		{name: "case sensitive", input: "Host,host", expected: []string{"Host", "host"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input))
		})
	}
}

func TestDedupeAndTrimKeepsNil(t *testing.T) {
	assert.Nil(t, DedupeAndTrim(nil))
	assert.Equal(t, []string{}, DedupeAndTrim([]string{}))
}
