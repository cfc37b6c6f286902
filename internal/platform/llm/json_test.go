package llm

import "testing"

func TestStripCodeFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, c := range cases {
		if got := StripCodeFences(c.in); got != c.want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"action":"approve"}`, `{"action":"approve"}`},
		{"Here is my answer:\n{\"action\":\"hold\"}\nThanks.", `{"action":"hold"}`},
		{"```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`},
		{`{"reason":"has } inside"}`, `{"reason":"has } inside"}`},
		{`{"reason":"escaped \" quote }"}`, `{"reason":"escaped \" quote }"}`},
		{"no json here", ""},
		{"{unbalanced", ""},
	}
	for _, c := range cases {
		if got := ExtractJSONObject(c.in); got != c.want {
			t.Errorf("ExtractJSONObject(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
