package mds

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCommand(t *testing.T) {
	confirmations := 3
	var nilInt *int
	var nilMap map[string]string

	tests := []struct {
		name   string
		cmd    string
		params []Param
		want   string
	}{
		{"bare", "status", nil, "status"},
		{"all absent", "balance", []Param{P("address", nil), P("confirmations", nilInt), Opt("tokenid", "")}, "balance"},
		{"order kept", "send", []Param{P("amount", "1.5"), P("address", "0xFF"), P("tokenid", "0x00")}, "send amount:1.5 address:0xFF tokenid:0x00"},
		{"mixed", "balance", []Param{Opt("address", ""), P("confirmations", &confirmations), P("x", nilMap)}, "balance confirmations:3"},
		{"bool and int", "coins", []Param{P("relevant", true), P("sendable", false), P("decimals", 8)}, "coins relevant:true sendable:false decimals:8"},
		{"zero values present", "search", []Param{P("block", 0), P("address", "")}, "search block:0 address:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildCommand(tt.cmd, tt.params...))
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"RETURN TRUE"`, Quote("RETURN TRUE"))
	assert.Equal(t, `"say \"hi\""`, Quote(`say "hi"`))
	assert.Equal(t, `"a\\b"`, Quote(`a\b`))
	assert.Equal(t, `""`, Quote(""))
}

func TestEncodeRoundTrip(t *testing.T) {
	commands := []string{
		"status",
		"send amount:1 address:0xFF tokenid:0x00",
		`newscript trackall:false script:"RETURN SIGNEDBY(0xAB) AND @BLOCK GT 10"`,
		"maxsend to:MxG08 application:chat data:\"héllo wörld / ? & = + # %\"",
		"tab\tnewline\nnull\x00",
	}
	for _, c := range commands {
		enc := Encode(c)
		for i := 0; i < len(enc); i++ {
			ch := enc[i]
			ok := isUnreserved(ch) || ch == '%' || (ch >= 'A' && ch <= 'F')
			require.True(t, ok, "unexpected byte %q in %q", ch, enc)
		}
		dec, err := url.PathUnescape(enc)
		require.NoError(t, err)
		assert.Equal(t, c, dec)
	}
}

func TestEncodeMatchesQuoteAll(t *testing.T) {
	assert.Equal(t, "balance%20tokenid%3A0x00", Encode("balance tokenid:0x00"))
	assert.Equal(t, "a-b_c.d~e%2Ff%22", Encode(`a-b_c.d~e/f"`))
	assert.Equal(t, "%C3%A9", Encode("é"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate([]byte("abc"), 200))
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, truncate(long, 200), 200)
}
