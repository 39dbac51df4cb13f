package domain

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"OpenAI.COM", "openai.com", false},
		{" https://OpenAI.COM/ ", "openai.com", false},
		{"openai.com:443", "openai.com", false},
		{"openai.com.", "openai.com", false},
		{"", "", true},
		{"localhost", "", true},
		{"foo..com", "", true},
		{"-bad.com", "", true},
		{"bad-.com", "", true},
	}

	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("Normalize(%q): expected error, got none (got=%q)", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Normalize(%q): unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Normalize(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    Domain
		wantErr bool
	}{
		{"Acme.IO", Domain{Name: "acme", Suffix: ".io"}, false},
		{"https://my-shop.dev/path", Domain{Name: "my-shop", Suffix: ".dev"}, false},
		{"a.com", Domain{}, true},
		{"acme.de", Domain{}, true},
		{"www.acme.com", Domain{}, true},
		{"averyveryverylongname1.com", Domain{}, true},
	}

	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("Parse(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeSuffix(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{"com": ".com", " .AI ": ".ai", ".xyz": ".xyz"} {
		got, err := NormalizeSuffix(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeSuffix(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := NormalizeSuffix(".museum"); err == nil {
		t.Fatalf("NormalizeSuffix(.museum): expected error")
	}
}

func TestExpand_DedupesAndSkipsInvalid(t *testing.T) {
	t.Parallel()

	got := Expand([]string{"foo", "bar", "foo", "x"}, []string{".com", "io"})
	want := []string{"foo.com", "foo.io", "bar.com", "bar.io"}
	if len(got) != len(want) {
		t.Fatalf("Expand=%v, want %v", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Fatalf("Expand[%d]=%s, want %s", i, got[i], want[i])
		}
	}
}

func TestParseList(t *testing.T) {
	t.Parallel()

	got := ParseList([]string{"foo.com, bar.io\nFOO.com", "nope baz.ai", "bad.museum"})
	if len(got) != 3 {
		t.Fatalf("ParseList=%v, want 3 domains", got)
	}
	if got[0].String() != "foo.com" || got[1].String() != "bar.io" || got[2].String() != "baz.ai" {
		t.Fatalf("ParseList=%v", got)
	}
}
