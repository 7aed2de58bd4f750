package game

import "testing"

func TestFlattenText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain string", raw: "ꜰᴀʀᴍ ᴀɴᴅ ꜰᴏᴏᴅ [ᴘᴀɢᴇ 1/5]", want: "ꜰᴀʀᴍ ᴀɴᴅ ꜰᴏᴏᴅ [ᴘᴀɢᴇ 1/5]"},
		{name: "text and extra", raw: `{"text":"Selling ","extra":[{"text":"(Cactus)"}]}`, want: "Selling (Cactus)"},
		{name: "nested extra", raw: `{"text":"","extra":[{"extra":[{"text":"a"},{"text":"b"}]},{"text":"c"}]}`, want: "abc"},
		{name: "invalid json kept", raw: `{"text":`, want: `{"text":`},
		{name: "empty component", raw: `{"color":"red"}`, want: `{"color":"red"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FlattenText(tt.raw); got != tt.want {
				t.Errorf("FlattenText(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
