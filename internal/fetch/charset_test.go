package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		contentType string
		want        string
	}{
		{name: "utf-8 declared", data: []byte("café"), contentType: "text/html; charset=UTF-8", want: "café"},
		{name: "utf-8 undeclared", data: []byte("naïve"), contentType: "text/html", want: "naïve"},
		{name: "no content type", data: []byte("plain"), contentType: "", want: "plain"},
		{name: "latin1 declared", data: []byte("caf\xe9"), contentType: "text/html; charset=ISO-8859-1", want: "café"},
		{name: "windows-1252 declared", data: []byte("\x93quoted\x94"), contentType: "text/html; charset=windows-1252", want: "“quoted”"},
		{name: "unknown label keeps bytes", data: []byte("abc"), contentType: "text/html; charset=x-made-up", want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBody(tt.data, tt.contentType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeBodyDetectsUndeclaredCharset(t *testing.T) {
	data := []byte("<html><head><title>Caf\xe9</title></head><body>Le caf\xe9 est tr\xe8s bon, merci beaucoup \xe0 vous.</body></html>")

	got, err := decodeBody(data, "text/html")
	require.NoError(t, err)
	assert.Contains(t, got, "Café")
}

func TestContentCharset(t *testing.T) {
	assert.Equal(t, "utf-8", contentCharset("text/html; charset=UTF-8"))
	assert.Equal(t, "", contentCharset("text/html"))
	assert.Equal(t, "", contentCharset("not a media type;;"))
}
