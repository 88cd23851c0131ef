package export

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/result"
	apperrors "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/errors"
)

func fakeFS(files map[string]string) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		content, ok := files[path]
		if !ok {
			return nil, errors.New("no such file")
		}
		return []byte(content), nil
	}
}

func TestExportExact(t *testing.T) {
	fs := fakeFS(map[string]string{
		"/src/A.go": "package a\nfunc Foo() { foo(x) }\n",
	})
	c := result.FromResults([]result.Result{{FileName: "/src/a.go", Path: "/src/A.go", Score: 1}}, 1)

	out, err := Export(context.Background(), c, "FOO", false, WithReadFile(fs))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NoError(t, out[0].Err)
	require.Equal(t, []FindingInFile{
		{Line: 2, Position: 5, Length: 3},
		{Line: 2, Position: 13, Length: 3},
	}, out[0].Findings)
}

func TestExportWildcard(t *testing.T) {
	fs := fakeFS(map[string]string{"f": "test team\ntoast"})
	c := result.FromResults([]result.Result{{FileName: "f"}}, 1)

	out, err := Export(context.Background(), c, "te*", true, WithReadFile(fs))
	require.NoError(t, err)
	require.Len(t, out[0].Findings, 2)
	for _, f := range out[0].Findings {
		require.Equal(t, 1, f.Line)
		require.Equal(t, 4, f.Length)
	}
}

func TestExportKeepsOrderAndIsolatesFailures(t *testing.T) {
	fs := fakeFS(map[string]string{"one": "x", "three": "x x"})
	c := result.FromResults([]result.Result{
		{FileName: "one", Score: 3},
		{FileName: "two", Score: 2},
		{FileName: "three", Score: 1},
	}, 3)

	out, err := Export(context.Background(), c, "x", false, WithReadFile(fs), WithWorkers(3))
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "one", out[0].FileName)
	require.Len(t, out[0].Findings, 1)
	require.ErrorIs(t, out[1].Err, apperrors.ErrFileAccess)
	require.Empty(t, out[1].Findings)
	require.Len(t, out[2].Findings, 2)
}

func TestExportValidation(t *testing.T) {
	_, err := Export(context.Background(), nil, "x", false)
	require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	_, err = Export(context.Background(), result.Empty(), "", false)
	require.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	out, err := Export(context.Background(), result.Empty(), "x", false)
	require.NoError(t, err)
	require.Empty(t, out)
}
