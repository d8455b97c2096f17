package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Pay now", want: "Pay now"},
		{name: "markup", in: `<a href="x">click</a> & win`, want: "&lt;a href=&#34;x&#34;&gt;click&lt;/a&gt; &amp; win"},
		{name: "newlines", in: "Hi,\r\nthanks\nBob", want: "Hi,<br>thanks<br>Bob"},
		{name: "single space kept", in: "a b", want: "a b"},
		{name: "space run", in: "a   b", want: "a&nbsp;&nbsp;&nbsp;b"},
		{name: "tab", in: "a\tb", want: "a&emsp;b"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeContent(tt.in))
		})
	}
}
