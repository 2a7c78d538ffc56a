package scan

import "testing"

func TestParseSnapshotSignals(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{
			name: "document form",
			text: `{"signals":[{"title":"A"},{"title":"B"}]}`,
			want: 2,
		},
		{
			name: "bare array",
			text: `[{"title":"A"}]`,
			want: 1,
		},
		{
			name: "fenced",
			text: "```json\n{\"signals\":[{\"title\":\"A\"}]}\n```",
			want: 1,
		},
		{
			name: "prose wrapped",
			text: `Sure! {"signals":[{"title":"A"}]} Hope that helps.`,
			want: 1,
		},
		{
			name: "empty signal list",
			text: `{"signals":[]}`,
			want: 0,
		},
		{
			name: "non-object members",
			text: `{"signals":[1,2,3]}`,
			want: 0,
		},
		{
			name: "no json",
			text: "nothing structured here",
			want: 0,
		},
		{
			name: "empty",
			text: "",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSnapshotSignals(tt.text)
			if len(got) != tt.want {
				t.Errorf("parseSnapshotSignals(%q) returned %d payloads, want %d", tt.text, len(got), tt.want)
			}
		})
	}
}
