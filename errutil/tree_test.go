package errutil_test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/errutil"
)

var errTransient = errors.New("transient resolve error")

// shape renders the type names of a tree, children in parentheses.
func shape(info errutil.ErrInfo) string {
	if len(info.Children) == 0 {
		return info.TypeName
	}
	children := make([]string, 0, len(info.Children))
	for _, c := range info.Children {
		children = append(children, shape(c))
	}
	return info.TypeName + "(" + strings.Join(children, ",") + ")"
}

func TestTree(t *testing.T) {
	t.Parallel()

	t.Run("NilErr", func(t *testing.T) {
		t.Parallel()
		assert.PanicsWithValue(t, "nil error", func() { errutil.Tree(nil) })
	})

	_, readErr := os.ReadDir("nonexistent-audio-dir")

	tests := []struct {
		name    string
		err     error
		message string
		shape   string
	}{
		{
			name:    "Leaf",
			err:     errors.New("codec not found"),
			message: "codec not found",
			shape:   "*errors.errorString",
		},
		{
			name:    "Joined",
			err:     errors.Join(errors.New("part 1 failed"), errors.New("part 2 failed")),
			message: "part 1 failed\npart 2 failed",
			shape:   "*errors.joinError(*errors.errorString,*errors.errorString)",
		},
		{
			name: "NestedJoins",
			err: errors.Join(
				errors.New("a"),
				errors.Join(errors.New("b"), errors.Join(errors.New("c"), errors.New("d"))),
			),
			message: "a\nb\nc\nd",
			shape:   "*errors.joinError(*errors.errorString,*errors.joinError(*errors.errorString,*errors.joinError(*errors.errorString,*errors.errorString)))",
		},
		{
			name:    "WrappedPathError",
			err:     errors.Join(errTransient, fmt.Errorf("scan failed: %w", readErr)),
			message: "transient resolve error\nscan failed: open nonexistent-audio-dir: no such file or directory",
			shape:   "*errors.joinError(*errors.errorString,*fmt.wrapError(*fs.PathError(syscall.Errno)))",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tree := errutil.Tree(tc.err)
			assert.Equal(t, tc.message, tree.Message)
			assert.Equal(t, tc.shape, shape(tree))
			assert.Nil(t, tree.ExitCode)
		})
	}
}

func TestErrInfoFlawP(t *testing.T) {
	t.Parallel()

	p := errutil.Tree(errors.Join(errors.New("first"), errors.New("second"))).FlawP()
	children, ok := p["children"].([]flaw.P)
	require.True(t, ok)
	require.Len(t, children, 2)
	assert.Equal(t, "first", children[0]["message"])
	assert.Equal(t, "second", children[1]["message"])
	assert.Nil(t, children[0]["children"])
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, errutil.ExitCode(errors.New("not a process error")))
	assert.Equal(t, -1, errutil.ExitCode(fmt.Errorf("wrapped: %w", os.ErrNotExist)))
}

func TestProcessFlawPayload(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	cmd := exec.Command("sh", "-c", "echo 'no such codec' >&2; exit 3")
	cmd.Stderr = &stderr
	err := cmd.Run()
	require.Error(t, err)
	assert.Equal(t, 3, errutil.ExitCode(err))

	tree := errutil.Tree(err)
	require.NotNil(t, tree.ExitCode)
	assert.Equal(t, 3, *tree.ExitCode)

	p := errutil.ProcessFlawPayload(cmd, stderr.String()+"\n", err)
	assert.Equal(t, 3, p["exit_code"])
	assert.Equal(t, "no such codec", p["stderr"])
	assert.Contains(t, p["cmd"], "sh -c")
	assert.Equal(t, 3, p["err_debug_tree"].(flaw.P)["exit_code"])
}
