package ignore

import "testing"

func TestMatchDefaultExcludes(t *testing.T) {
	m := New(nil)
	cases := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{".git/config", false, true},
		{".agentsmithy/status.json", false, true},
		{"node_modules/foo/index.js", false, true},
		{"src/main.go", false, false},
		{"a/b/__pycache__/x.pyc", false, true},
	}
	for _, c := range cases {
		if got := m.Match(c.path, c.isDir); got != c.want {
			t.Errorf("Match(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestForceAddOverridesIgnore(t *testing.T) {
	// .venv/ is ignored by default, but staging a file under it should
	// still be forced into the tree — that is the Tracker's job, not
	// the Matcher's; here we only confirm the Matcher itself flags it.
	m := New(nil)
	if !m.Match(".venv/config.py", false) {
		t.Fatal("expected .venv/config.py to be ignored by the matcher")
	}
}

func TestGitignorePatterns(t *testing.T) {
	m := New([]byte("*.log\n/out\n!keep.log\n"))
	if !m.Match("debug.log", false) {
		t.Error("expected *.log to match debug.log")
	}
	if m.Match("keep.log", false) {
		t.Error("expected negated !keep.log to re-include keep.log")
	}
	if !m.Match("out/app.bin", false) {
		t.Error("expected anchored /out to match out/app.bin")
	}
	if m.Match("sub/out/app.bin", false) {
		t.Error("anchored /out should not match nested sub/out")
	}
}
