package synthesis

import (
	"context"
	"strings"
	"testing"
)

func TestParseValues(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{"prose only", "Nothing relevant here.", []string{}},
		{"dash lines", "- one\n- two", []string{"one", "two"}},
		{"indented and padded", "   -   spaced out   \n\t-tight", []string{"spaced out", "tight"}},
		{"bare dashes dropped", "-\n-   \n- kept", []string{"kept"}},
		{"numbered ignored", "1. numbered\n* starred\n- dashed", []string{"dashed"}},
		{"crlf", "- a\r\n- b\r\n", []string{"a", "b"}},
		{"only first dash stripped", "--double", []string{"-double"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseValues(tc.in)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
				t.Fatalf("ParseValues(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	system, user := BuildPrompt(PromptInput{
		Topic:       "Culture",
		Subtopic:    "Feedback",
		Description: "  How we give feedback  ",
		Excerpts:    []string{"first excerpt", "second excerpt"},
		MinValues:   3,
		MaxValues:   7,
		MaxWords:    25,
	})
	if !strings.Contains(system, "learning DNA") {
		t.Fatalf("system prompt: %q", system)
	}
	for _, want := range []string{
		"Topic: Culture\nSubtopic: Feedback\nDescription: How we give feedback\n",
		"Write 3 to 7 value statements",
		"under 25 words",
		"output nothing",
		"Source excerpts:\nfirst excerpt\n\n---\n\nsecond excerpt",
	} {
		if !strings.Contains(user, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, user)
		}
	}

	_, user = BuildPrompt(PromptInput{Topic: "T", Subtopic: "S", Description: "   "})
	if strings.Contains(user, "Description:") {
		t.Fatalf("blank description rendered:\n%s", user)
	}
}

func TestParseLockMode(t *testing.T) {
	for in, want := range map[string]string{"": LockNone, "none": LockNone, "LOCAL": LockLocal, " redis ": LockRedis} {
		got, err := ParseLockMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseLockMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseLockMode("etcd"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, ok, _ := l.TryLock(ctx, "a")
	if !ok {
		t.Fatalf("first acquire failed")
	}
	if _, ok, _ := l.TryLock(ctx, "a"); ok {
		t.Fatalf("second acquire of held key succeeded")
	}
	if _, ok, _ := l.TryLock(ctx, "b"); !ok {
		t.Fatalf("independent key blocked")
	}
	release()
	release()
	if _, ok, _ := l.TryLock(ctx, "a"); !ok {
		t.Fatalf("acquire after release failed")
	}
}
