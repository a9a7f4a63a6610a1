package tgui

import (
	"strings"
	"testing"
)

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()

	d := Data("auth", "approve", "12345")
	if d != "auth:approve:12345" {
		t.Fatalf("data=%q", d)
	}
	cb, ok := ParseData(d)
	if !ok || cb.Scope != "auth" || cb.Action != "approve" || cb.Arg(0) != "12345" || cb.Arg(1) != "" {
		t.Fatalf("parsed=%+v ok=%v", cb, ok)
	}
	for _, bad := range []string{"", "auth", ":x", "auth:"} {
		if _, ok := ParseData(bad); ok {
			t.Fatalf("%q parsed", bad)
		}
	}
	if _, err := CheckedData("news", "comment", strings.Repeat("9", 80)); err != ErrCallbackDataTooLong {
		t.Fatalf("err=%v", err)
	}
}

func TestHTMLHelpers(t *testing.T) {
	t.Parallel()

	if got := B("<Иванов>").String(); got != "<b>&lt;Иванов&gt;</b>" {
		t.Fatalf("B=%q", got)
	}
	if got := Mention("Анна", 42).String(); got != `<a href="tg://user?id=42">Анна</a>` {
		t.Fatalf("mention=%q", got)
	}
	if got := JoinH("\n", B("a"), "", I("b")).String(); got != "<b>a</b>\n<i>b</i>" {
		t.Fatalf("join=%q", got)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"привет", 10, "привет"},
		{"привет", 6, "привет"},
		{"привет", 3, "при…"},
		{"abc", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("TruncRunes(%q,%d)=%q want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
