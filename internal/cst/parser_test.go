package cst

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSource(t *testing.T, src string) *Source {
	t.Helper()
	s, err := Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestParse_CleanSource(t *testing.T) {
	s := parseSource(t, "fn main() {\n    println!(\"hi\");\n}\n")
	assert.False(t, s.HasErrors())
	assert.Equal(t, "source_file", s.Root().Type())
	assert.Empty(t, s.ErrorLocations())
}

func TestParse_BrokenSource(t *testing.T) {
	s := parseSource(t, "fn main( {\n")
	assert.True(t, s.HasErrors())

	locs := s.ErrorLocations()
	require.NotEmpty(t, locs)
	assert.Equal(t, 1, locs[0].Line)
	assert.NotEmpty(t, locs[0].Context)
}

func TestParse_PreservesCommentsAndOffsets(t *testing.T) {
	src := "// leading\nfn f() {} // trailing\n"
	s := parseSource(t, src)

	root := s.Root()
	require.GreaterOrEqual(t, int(root.NamedChildCount()), 2)

	first := root.NamedChild(0)
	assert.Equal(t, "line_comment", first.Type())
	assert.Equal(t, "// leading", s.Text(first))
	assert.Equal(t, 0, int(first.StartByte()))
}

func TestWithParser_Reuse(t *testing.T) {
	for i := 0; i < 3; i++ {
		err := WithParser(func(p *Parser) error {
			s, err := p.Parse(context.Background(), []byte("fn a() {}"))
			if err != nil {
				return err
			}
			defer s.Close()
			if s.HasErrors() {
				t.Fatal("unexpected parse errors")
			}
			return nil
		})
		require.NoError(t, err)
	}
}
