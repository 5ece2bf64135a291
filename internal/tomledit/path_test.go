package tomledit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSectionPath(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single segment", "workspace", []string{"workspace"}},
		{"dotted", "profile.release", []string{"profile", "release"}},
		{"double quoted with dot", `target."cfg(unix)".deps`, []string{"target", "cfg(unix)", "deps"}},
		{"single quoted literal", `profile.'release.fast'`, []string{"profile", "release.fast"}},
		{"escaped quote", `a."b\"c"`, []string{"a", `b"c`}},
		{"dashes and underscores", "x86_64-unknown-linux-gnu", []string{"x86_64-unknown-linux-gnu"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseSectionPath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Parts())
		})
	}
}

func TestParseSectionPath_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"empty segment", "a..b"},
		{"leading dot", ".a"},
		{"whitespace", "a b"},
		{"unterminated quote", `a."b`},
		{"quote after bare chars", `ab"c"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSectionPath(tt.input)
			var pe *PathError
			require.ErrorAs(t, err, &pe)
		})
	}
}

func TestSectionPath_EqualAcrossQuoting(t *testing.T) {
	bare, err := ParseSectionPath("target.x86_64")
	require.NoError(t, err)
	quoted, err := ParseSectionPath(`target."x86_64"`)
	require.NoError(t, err)
	assert.True(t, bare.Equal(quoted))
	assert.Equal(t, "target.x86_64", bare.String())
}

func TestParseKeyPath(t *testing.T) {
	k, err := ParseKeyPath(`metadata."docs.rs"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"metadata", "docs.rs"}, k.Parts())

	_, err = ParseKeyPath("")
	var pe *PathError
	require.ErrorAs(t, err, &pe)
}

func TestQueryConstructors(t *testing.T) {
	s := SectionPath{parts: []string{"profile", "release"}}
	k := KeyPath{parts: []string{"opt-level"}}

	sq := SectionQuery(s)
	assert.Nil(t, sq.Key)

	kq := KeyQuery(s, k)
	require.NotNil(t, kq.Key)
	assert.True(t, kq.Key.Equal(k))
}
