package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  plain text  ", "plain text"},
		{"Tom & Jerry", "Tom & Jerry"},
		{"<b>bold</b> move", "bold move"},
		{`<script>alert("x")</script>hello`, "hello"},
		{`<a href="javascript:alert(1)">click</a>`, "click"},
		{"<img src=x onerror=alert(1)>", ""},
		{"line one\nline two", "line one\nline two"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Text(tc.in), "input %q", tc.in)
	}
}

func TestLine(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", Line("  Ada \n\t <i>Lovelace</i> "))
}
