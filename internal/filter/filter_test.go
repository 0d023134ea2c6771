package filter_test

import (
	"testing"

	"github.com/MrWong99/frontdesk/internal/filter"
)

func TestFilter_Check(t *testing.T) {
	f := filter.New()
	tests := []struct {
		text string
		want filter.Reason
	}{
		{"", filter.TooShort},
		{"um", filter.TooShort},
		{"ok", filter.TooShort},
		{"yes", filter.TooShort},
		{"  hi  ", filter.TooShort},
		{"Yes.", filter.Noise},
		{"Okay!", filter.Noise},
		{"Hello?", filter.Noise},
		{"hello", filter.Noise},
		{"Thank you", filter.NotQuestion},
		{"Bye now", filter.NotQuestion},
		{"Cut", filter.TooShort},
		{"Cuts", filter.NotQuestion},
		{"Hours", filter.Accepted},
		{"Prices?", filter.Accepted},
		{"What are your hours?", filter.Accepted},
		{"I need a trim", filter.Accepted},
		{"walk ins", filter.Accepted},
		{"Sí.", filter.TooShort},
		{"日本語", filter.TooShort},
		{"  né  ", filter.TooShort},
		{"Año?", filter.Accepted},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := f.Check(tt.text)
			want := tt.want
			if got.Reason != want {
				t.Errorf("Check(%q) reason = %s, want %s", tt.text, got.Reason, want)
			}
			if got.Accept != (want == filter.Accepted) {
				t.Errorf("Check(%q) accept = %v", tt.text, got.Accept)
			}
		})
	}
}

func TestFilter_CustomVocabulary(t *testing.T) {
	f := filter.New(
		filter.WithNoise("right"),
		filter.WithQuestionWords("parking"),
	)
	if v := f.Check("right"); v.Reason != filter.Noise {
		t.Errorf("custom noise: got %s", v.Reason)
	}
	if v := f.Check("hello"); v.Reason == filter.Noise {
		t.Error("default noise should be replaced")
	}
	if v := f.Check("parking"); !v.Accept {
		t.Errorf("custom question word: got %s", v.Reason)
	}
	if v := f.Check("hours"); v.Accept {
		t.Error("default question words should be replaced")
	}
}
