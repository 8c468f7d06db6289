package reviewers

import (
	"context"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/patchwise/internal/patch"
	"github.com/dshills/patchwise/internal/toolrun"
)

const codeDiff = `diff --git a/a.c b/a.c
index 1111111..2222222 100644
--- a/a.c
+++ b/a.c
@@ -40,3 +40,4 @@ static int foo(void)
     int x;
     int y;
+    int zzzz_a_rather_long_name_that_makes_the_line_exceed_the_limit;
     return 0;
diff --git a/drivers/foo/b.c b/drivers/foo/b.c
index 3333333..4444444 100644
--- a/drivers/foo/b.c
+++ b/drivers/foo/b.c
@@ -1,2 +1,3 @@
 #include <linux/slab.h>
+void *p = (char *)kmalloc(4, GFP_KERNEL);
 int b;
`

const dtsDiff = `diff --git a/arch/arm64/boot/dts/qcom/x.dts b/arch/arm64/boot/dts/qcom/x.dts
index 5555555..6666666 100644
--- a/arch/arm64/boot/dts/qcom/x.dts
+++ b/arch/arm64/boot/dts/qcom/x.dts
@@ -1,2 +1,3 @@
 / {
+    foo;
 };
`

const bindingDiff = `diff --git a/Documentation/devicetree/bindings/foo.yaml b/Documentation/devicetree/bindings/foo.yaml
index 7777777..8888888 100644
--- a/Documentation/devicetree/bindings/foo.yaml
+++ b/Documentation/devicetree/bindings/foo.yaml
@@ -10,2 +10,3 @@ properties:
   compatible:
+    const: vendor,foo
   reg:
`

func newPatch(t *testing.T, diff string) *patch.Patch {
	t.Helper()
	p, err := patch.New(patch.Meta{
		Ref:     "c0ffee",
		Parent:  "base",
		Message: "foo: add zzzz\n\nAdded a variable.\n\nSigned-off-by: Jane Dev <jane@example.com>",
	}, diff)
	require.NoError(t, err)
	return p
}

type fakeRunner struct {
	mu    sync.Mutex
	cmds  []toolrun.Command
	reply func(cmd toolrun.Command) (toolrun.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, cmd toolrun.Command) (toolrun.Result, error) {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	f.mu.Unlock()
	if f.reply == nil {
		return toolrun.Result{}, nil
	}
	return f.reply(cmd)
}

func (f *fakeRunner) commands() []toolrun.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.cmds)
}

// fakeTrees places every revision under root without checking anything out.
type fakeTrees struct {
	root string
}

func (f fakeTrees) Path(_ context.Context, rev string) (string, error) {
	return filepath.Join(f.root, rev), nil
}

type fakeBlame struct {
	mu         sync.Mutex
	introduced map[string]bool
	calls      []string
}

func (f *fakeBlame) BlameIntroduced(_ context.Context, base, rev, path string, line int) (bool, error) {
	key := path + ":" + strconv.Itoa(line)
	f.mu.Lock()
	f.calls = append(f.calls, base+".."+rev+" "+key)
	f.mu.Unlock()
	return f.introduced[key], nil
}

func hasArg(cmd toolrun.Command, arg string) bool {
	return slices.Contains(cmd.Args, arg)
}
