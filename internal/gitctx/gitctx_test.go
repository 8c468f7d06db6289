package gitctx

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/patchwise/internal/patch"
)

func TestParseMeta(t *testing.T) {
	out := "abc123\x00p1 p2\x00Jane Dev\x00jane@example.com\x002024-05-01T10:00:00+02:00\x00subject line\n\nbody\n"
	m, err := parseMeta(out)
	if err != nil {
		t.Fatalf("parseMeta: %v", err)
	}
	if m.Ref != "abc123" {
		t.Errorf("Ref = %q", m.Ref)
	}
	if m.Parent != "p1" {
		t.Errorf("Parent = %q, want first parent p1", m.Parent)
	}
	if m.Message != "subject line\n\nbody" {
		t.Errorf("Message = %q", m.Message)
	}
	if m.Author.Email != "jane@example.com" {
		t.Errorf("Author.Email = %q", m.Author.Email)
	}
}

func TestParseMeta_Malformed(t *testing.T) {
	if _, err := parseMeta("only\x00two"); err == nil {
		t.Error("expected error for short output")
	}
}

// setupTestRepo creates a temp git repo with three commits and returns its
// path and the commit shas, oldest first.
func setupTestRepo(t *testing.T) (string, []string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()

	run := func(args ...string) string {
		t.Helper()
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test",
			"GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test",
			"GIT_COMMITTER_EMAIL=test@test.com",
			"GIT_CONFIG_NOSYSTEM=1",
			"HOME="+dir,
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("command %v failed: %v\n%s", args, err, out)
		}
		return strings.TrimSpace(string(out))
	}
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	run("git", "init", "-q")
	run("git", "checkout", "-q", "-b", "main")

	var shas []string
	write("a.c", "int a(void)\n{\n\treturn 0;\n}\n")
	run("git", "add", "-A")
	run("git", "commit", "-q", "-m", "add a")
	shas = append(shas, run("git", "rev-parse", "HEAD"))

	write("a.c", "int a(void)\n{\n\treturn 1;\n}\n")
	run("git", "commit", "-q", "-am", "change a")
	shas = append(shas, run("git", "rev-parse", "HEAD"))

	write("b.c", "int b;\n")
	run("git", "add", "-A")
	run("git", "commit", "-q", "-m", "add b\n\nLonger body.")
	shas = append(shas, run("git", "rev-parse", "HEAD"))

	return dir, shas
}

func TestExpand(t *testing.T) {
	dir, shas := setupTestRepo(t)
	ctx := context.Background()
	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	refs, err := repo.Expand(ctx, nil)
	if err != nil || len(refs) != 1 || refs[0] != DefaultRef {
		t.Errorf("Expand(nil) = %v, %v; want [HEAD]", refs, err)
	}

	refs, err = repo.Expand(ctx, []string{shas[0] + "..HEAD"})
	if err != nil {
		t.Fatalf("Expand range: %v", err)
	}
	if len(refs) != 2 || refs[0] != shas[1] || refs[1] != shas[2] {
		t.Errorf("Expand range = %v, want oldest first %v", refs, shas[1:])
	}

	refs, err = repo.Expand(ctx, []string{"HEAD", "HEAD~1"})
	if err != nil || len(refs) != 2 || refs[0] != "HEAD" {
		t.Errorf("Expand list = %v, %v", refs, err)
	}
}

func TestExpand_InvalidRange(t *testing.T) {
	dir, _ := setupTestRepo(t)
	ctx := context.Background()
	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = repo.Expand(ctx, []string{"nope..HEAD"})
	var re *RangeError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *RangeError", err)
	}
	if re.Range != "nope..HEAD" {
		t.Errorf("Range = %q", re.Range)
	}
}

func TestLoad(t *testing.T) {
	dir, shas := setupTestRepo(t)
	ctx := context.Background()
	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	p, err := repo.Load(ctx, shas[1])
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Ref() != shas[1] || p.Parent() != shas[0] {
		t.Errorf("Ref/Parent = %s/%s", p.Ref(), p.Parent())
	}
	if p.Subject() != "change a" {
		t.Errorf("Subject = %q", p.Subject())
	}
	files := p.Files()
	if len(files) != 1 || files[0].Path() != "a.c" || files[0].Kind != patch.Modified {
		t.Fatalf("Files = %+v", files)
	}
	if got := p.AddedLines("a.c"); len(got) != 1 || got[0] != 3 {
		t.Errorf("AddedLines = %v, want [3]", got)
	}

	root, err := repo.Load(ctx, shas[0])
	if err != nil {
		t.Fatalf("Load root: %v", err)
	}
	if root.Parent() != "" {
		t.Errorf("root Parent = %q, want empty", root.Parent())
	}
	if f, ok := root.File("a.c"); !ok || f.Kind != patch.Added {
		t.Errorf("root commit should add a.c, got %+v", f)
	}
}

func TestLoad_UnknownRef(t *testing.T) {
	dir, _ := setupTestRepo(t)
	ctx := context.Background()
	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = repo.Load(ctx, "does-not-exist")
	var cre *CommitResolutionError
	if !errors.As(err, &cre) {
		t.Fatalf("err = %v, want *CommitResolutionError", err)
	}
	if cre.Ref != "does-not-exist" {
		t.Errorf("Ref = %q", cre.Ref)
	}
}

func TestShowFileHistoryBlame(t *testing.T) {
	dir, shas := setupTestRepo(t)
	ctx := context.Background()
	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	content, err := repo.ShowFile(ctx, shas[0], "a.c")
	if err != nil {
		t.Fatalf("ShowFile: %v", err)
	}
	if !strings.Contains(content, "return 0;") {
		t.Errorf("ShowFile = %q", content)
	}

	hist, err := repo.History(ctx, shas[2], "a.c", 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || hist[0].SHA != shas[1] || hist[1].Subject != "add a" {
		t.Errorf("History = %+v", hist)
	}

	changed, err := repo.ChangedFiles(ctx, shas[0], shas[2])
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if len(changed) != 2 {
		t.Errorf("ChangedFiles = %v, want a.c and b.c", changed)
	}

	introduced, err := repo.BlameIntroduced(ctx, shas[0], shas[1], "a.c", 3)
	if err != nil {
		t.Fatalf("BlameIntroduced: %v", err)
	}
	if !introduced {
		t.Error("line 3 was changed in base..rev and should be attributed to it")
	}
	introduced, err = repo.BlameIntroduced(ctx, shas[0], shas[1], "a.c", 1)
	if err != nil {
		t.Fatalf("BlameIntroduced: %v", err)
	}
	if introduced {
		t.Error("line 1 predates the range and should be a boundary line")
	}
}

func TestWorktrees(t *testing.T) {
	dir, shas := setupTestRepo(t)
	ctx := context.Background()
	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	wt := NewWorktrees(repo)

	p1, err := wt.Path(ctx, shas[0])
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	again, err := wt.Path(ctx, shas[0])
	if err != nil || again != p1 {
		t.Errorf("second Path = %q, %v; want cached %q", again, err, p1)
	}
	data, err := os.ReadFile(filepath.Join(p1, "a.c"))
	if err != nil || !strings.Contains(string(data), "return 0;") {
		t.Errorf("worktree content = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(p1, "b.c")); !os.IsNotExist(err) {
		t.Error("b.c should not exist at the first commit")
	}

	if err := wt.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Error("worktree should be removed after Close")
	}
}

const fixupGood = `From 0000000000000000000000000000000000000000 Mon Sep 17 00:00:00 2001
From: Fix Author <fix@example.com>
Date: Mon, 1 Jan 2024 00:00:00 +0000
Subject: [PATCH] add fix

---
 fix.txt | 1 +
 1 file changed, 1 insertion(+)
 create mode 100644 fix.txt

diff --git a/fix.txt b/fix.txt
new file mode 100644
--- /dev/null
+++ b/fix.txt
@@ -0,0 +1 @@
+fixed
-- 
2.40.0
`

const fixupStale = `From 0000000000000000000000000000000000000000 Mon Sep 17 00:00:00 2001
From: Fix Author <fix@example.com>
Date: Mon, 1 Jan 2024 00:00:00 +0000
Subject: [PATCH] change a

---
 a.c | 2 +-
 1 file changed, 1 insertion(+), 1 deletion(-)

diff --git a/a.c b/a.c
--- a/a.c
+++ b/a.c
@@ -1,4 +1,4 @@
 int a(void)
 {
-	return 5;
+	return 6;
 }
-- 
2.40.0
`

func TestWorktrees_PathWithPatches(t *testing.T) {
	dir, shas := setupTestRepo(t)
	ctx := context.Background()
	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	wt := NewWorktrees(repo)
	defer wt.Close(ctx)

	series := t.TempDir()
	stale := filepath.Join(series, "0001-stale.patch")
	good := filepath.Join(series, "0002-good.patch")
	if err := os.WriteFile(stale, []byte(fixupStale), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(good, []byte(fixupGood), 0o644); err != nil {
		t.Fatal(err)
	}

	fixed, err := wt.PathWithPatches(ctx, shas[0], "general", []string{stale, good})
	if err != nil {
		t.Fatalf("PathWithPatches: %v", err)
	}
	if data, err := os.ReadFile(filepath.Join(fixed, "fix.txt")); err != nil || string(data) != "fixed\n" {
		t.Errorf("fix.txt = %q, %v; want the applied fixup", data, err)
	}
	if data, err := os.ReadFile(filepath.Join(fixed, "a.c")); err != nil || !strings.Contains(string(data), "return 0;") {
		t.Errorf("a.c = %q, %v; the stale fixup should be skipped", data, err)
	}

	again, err := wt.PathWithPatches(ctx, shas[0], "general", []string{stale, good})
	if err != nil || again != fixed {
		t.Errorf("second PathWithPatches = %q, %v; want cached %q", again, err, fixed)
	}

	plain, err := wt.Path(ctx, shas[0])
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if plain == fixed {
		t.Fatal("plain and patched checkouts should differ")
	}
	if _, err := os.Stat(filepath.Join(plain, "fix.txt")); !os.IsNotExist(err) {
		t.Error("fixups should not leak into the plain checkout")
	}
}
