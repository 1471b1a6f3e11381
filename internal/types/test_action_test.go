package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		in   string
		want Action
	}{
		{in: "set Label1.Text to 'Button clicked!'", want: SetProperty("Label1", "Text", Literal{Kind: LiteralText, Text: "Button clicked!"})},
		{in: `SET Label1.FontSize TO 24`, want: SetProperty("Label1", "FontSize", Literal{Kind: LiteralNumber, Text: "24"})},
		{in: "set Button1.Enabled to false", want: SetProperty("Button1", "Enabled", Literal{Kind: LiteralBool, Text: "False"})},
		{in: "set DisplayLabel.Text to (get DisplayLabel.Text) + '1'", want: RawText("set DisplayLabel.Text to (get DisplayLabel.Text) + '1'")},
		{in: "show a notifier", want: RawText("show a notifier")},
		{in: "set L.Text to 'it's'", want: RawText("set L.Text to 'it's'")},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			require.Equal(t, tc.want, ParseAction(tc.in))
		})
	}
}

func TestActionUnmarshalForms(t *testing.T) {
	var bindings []EventBinding
	raw := `[
		{"event":"Button1.Click","action":"set Label1.Text to \"hi\""},
		{"event":"Button1.LongClick","action":{"kind":"set_property","component":"Label1","property":"Visible","value":true}},
		{"event":"Button2.Click","action":{"kind":"raw_text","content":"play a sound"}},
		{"event":"Button3.Click","action":{"kind":"set_property","component":"Label1"}},
		{"event":"Button4.Click","action":42}
	]`
	require.NoError(t, json.Unmarshal([]byte(raw), &bindings))

	require.Equal(t, SetProperty("Label1", "Text", Literal{Kind: LiteralText, Text: "hi"}), bindings[0].Action)
	require.Equal(t, SetProperty("Label1", "Visible", Literal{Kind: LiteralBool, Text: "True"}), bindings[1].Action)
	require.Equal(t, RawText("play a sound"), bindings[2].Action)
	require.Equal(t, ActionRawText, bindings[3].Action.Kind)
	require.Contains(t, bindings[3].Action.Content, `"component":"Label1"`)
	require.Equal(t, RawText("42"), bindings[4].Action)
}

func TestActionJSONRoundTripKeepsVariant(t *testing.T) {
	in := SetProperty("Label1", "FontSize", Literal{Kind: LiteralNumber, Text: "18"})
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out Action
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, in, out)
}
