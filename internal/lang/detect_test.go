package lang

import "testing"

func TestDetect(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"", Unknown},
		{"   ", Unknown},
		{"12345 !?", Unknown},
		{"hello", English},
		{"你好", Chinese},
		{"你好world", EnglishDominant},
		{"采购大米 ok", ChineseDominant},
		{"ab你好", Mixed},
		{"Ünïcödé", English}, // only the ASCII letters count
	}
	for _, tc := range cases {
		if got := Detect(tc.text); got != tc.want {
			t.Errorf("Detect(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestDetect_MixedTagsForBothScripts(t *testing.T) {
	for _, s := range []string{"你好world", "hello 世界", "中文English混合"} {
		switch Detect(s) {
		case ChineseDominant, EnglishDominant, Mixed:
		default:
			t.Errorf("Detect(%q) should report a mixed tag, got %q", s, Detect(s))
		}
	}
}
