package compiler

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const e0063Line = `{"reason":"compiler-message","message":{"message":"missing field ` + "`retry_count`" + ` in initializer of ` + "`Config`" + `","code":{"code":"E0063"},"level":"error","spans":[{"file_name":"src/main.rs","byte_start":120,"byte_end":158,"line_start":9,"line_end":12,"column_start":15,"column_end":6,"is_primary":true,"text":[{"text":"    let cfg = Config {"}],"suggested_replacement":null,"suggestion_applicability":null,"expansion":null}],"children":[{"message":"consider using the Default trait","code":null,"level":"help","spans":[{"file_name":"src/main.rs","byte_start":120,"byte_end":158,"line_start":9,"line_end":12,"column_start":15,"column_end":6,"is_primary":true,"text":[],"suggested_replacement":"..Default::default()","suggestion_applicability":"MaybeIncorrect","expansion":null}],"children":[]}],"rendered":"error[E0063]: missing field"}}`

func TestParseCheckOutputCollectsErrors(t *testing.T) {
	root := t.TempDir()
	stream := strings.Join([]string{
		`some build script chatter that is not JSON`,
		`{"reason":"compiler-artifact","target":{"name":"demo"}}`,
		`{"reason":"compiler-message","message":{"message":"unused variable: ` + "`x`" + `","code":{"code":"unused_variables"},"level":"warning","spans":[],"children":[],"rendered":"warning"}}`,
		e0063Line,
		``,
	}, "\n")

	diags, err := ParseCheckOutput(strings.NewReader(stream), root)
	require.NoError(t, err)
	require.Len(t, diags, 1, "warnings and artifacts must be skipped")

	d := diags[0]
	assert.Equal(t, "E0063", d.Code)
	assert.Equal(t, "error", d.Level)
	assert.True(t, d.HasCode("E0063"))
	assert.Contains(t, d.Message, "missing field")
	assert.Equal(t, "error[E0063]: missing field", d.Rendered)

	require.Len(t, d.Spans, 1)
	span, ok := d.PrimarySpan()
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "src/main.rs"), span.File)
	assert.Equal(t, 120, span.ByteStart)
	assert.Equal(t, 158, span.ByteEnd)
	assert.Equal(t, 9, span.LineStart)
	assert.True(t, span.Primary)
	assert.False(t, span.InMacro)
	assert.Equal(t, "    let cfg = Config {", span.Text)

	require.Len(t, d.Suggestions, 1)
	assert.Equal(t, "..Default::default()", d.Suggestions[0].Replacement)
	assert.Equal(t, MaybeIncorrect, d.Suggestions[0].Applicability)
	assert.False(t, d.HasMachineApplicableFix())
}

func TestParseCheckOutputMachineApplicable(t *testing.T) {
	root := t.TempDir()
	line := `{"reason":"compiler-message","message":{"message":"unused import: ` + "`std::io`" + `","code":{"code":"unused_imports"},"level":"error","spans":[{"file_name":"src/lib.rs","byte_start":4,"byte_end":12,"line_start":1,"line_end":1,"column_start":5,"column_end":13,"is_primary":true,"text":[],"suggested_replacement":null,"suggestion_applicability":null,"expansion":null}],"children":[{"message":"remove the unused import","code":null,"level":"help","spans":[{"file_name":"src/lib.rs","byte_start":0,"byte_end":13,"line_start":1,"line_end":1,"column_start":1,"column_end":14,"is_primary":true,"text":[],"suggested_replacement":"","suggestion_applicability":"MachineApplicable","expansion":null}],"children":[]}],"rendered":"error: unused import"}}`

	diags, err := ParseCheckOutput(strings.NewReader(line), root)
	require.NoError(t, err)
	require.Len(t, diags, 1)

	d := diags[0]
	assert.True(t, d.HasMachineApplicableFix())
	fixes := d.MachineApplicable()
	require.Len(t, fixes, 1)
	assert.Equal(t, filepath.Join(root, "src/lib.rs"), fixes[0].File)
	assert.Equal(t, 0, fixes[0].ByteStart)
	assert.Equal(t, 13, fixes[0].ByteEnd)
	assert.Equal(t, "", fixes[0].Replacement)
	assert.Equal(t, "remove the unused import", fixes[0].Message)
}

func TestParseCheckOutputDropsForeignSpans(t *testing.T) {
	root := t.TempDir()
	line := `{"reason":"compiler-message","message":{"message":"trait bound not satisfied","code":{"code":"E0277"},"level":"error","spans":[{"file_name":"/home/u/.cargo/registry/src/index/serde-1.0.0/src/de.rs","byte_start":1,"byte_end":2,"line_start":1,"line_end":1,"column_start":1,"column_end":2,"is_primary":false,"text":[],"suggested_replacement":null,"suggestion_applicability":null,"expansion":null},{"file_name":"/somewhere/else/src/lib.rs","byte_start":1,"byte_end":2,"line_start":1,"line_end":1,"column_start":1,"column_end":2,"is_primary":true,"text":[],"suggested_replacement":null,"suggestion_applicability":null,"expansion":null}],"children":[],"rendered":"error"}}`

	diags, err := ParseCheckOutput(strings.NewReader(line), root)
	require.NoError(t, err)
	require.Len(t, diags, 1)

	assert.Empty(t, diags[0].Spans, "registry and out-of-workspace spans must be dropped")
	_, ok := diags[0].PrimarySpan()
	assert.False(t, ok)
}

func TestParseCheckOutputMarksMacroExpansions(t *testing.T) {
	root := t.TempDir()
	line := `{"reason":"compiler-message","message":{"message":"missing field ` + "`kind`" + ` in initializer of ` + "`Event`" + `","code":{"code":"E0063"},"level":"error","spans":[{"file_name":"src/events.rs","byte_start":40,"byte_end":60,"line_start":3,"line_end":3,"column_start":1,"column_end":21,"is_primary":true,"text":[],"suggested_replacement":null,"suggestion_applicability":null,"expansion":{"macro_decl_name":"event!"}}],"children":[],"rendered":"error"}}`

	diags, err := ParseCheckOutput(strings.NewReader(line), root)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	require.Len(t, diags[0].Spans, 1)
	assert.True(t, diags[0].Spans[0].InMacro)
}

func TestParseCheckOutputIgnoresGarbage(t *testing.T) {
	root := t.TempDir()
	stream := "{ truncated json\nnot json at all\n\n{\"reason\":\"build-finished\",\"success\":false}\n"

	diags, err := ParseCheckOutput(strings.NewReader(stream), root)
	require.NoError(t, err)
	assert.Empty(t, diags)
}
