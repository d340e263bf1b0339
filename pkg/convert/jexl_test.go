package convert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJEXLEvalReturnsCompletionValue(t *testing.T) {
	j := newJEXLInterpreter()
	scope := NewRootScope(nil, "PID", nil, nil)
	v, err := j.eval(context.Background(), `"a" + "b"`, scope)
	require.NoError(t, err)
	require.Equal(t, "ab", v)
}

func TestJEXLGeneralUtilsGenderCode(t *testing.T) {
	j := newJEXLInterpreter()
	scope := NewRootScope(nil, "PID", nil, nil)
	v, err := j.eval(context.Background(), `GeneralUtils.genderCode("M")`, scope)
	require.NoError(t, err)
	require.Equal(t, "male", v)
}

func TestJEXLGeneralUtilsGenerateResourceIdIsUUID(t *testing.T) {
	j := newJEXLInterpreter()
	scope := NewRootScope(nil, "PID", nil, nil)
	v, err := j.eval(context.Background(), `GeneralUtils.generateResourceId()`, scope)
	require.NoError(t, err)
	id, ok := v.(string)
	require.True(t, ok)
	require.Len(t, id, 36)
}

func TestJEXLOmopConceptLookupIsNotConfigured(t *testing.T) {
	j := newJEXLInterpreter()
	scope := NewRootScope(nil, "PID", nil, nil)
	_, err := j.eval(context.Background(), `OmopConcept.lookup("123")`, scope)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not configured")
}

func TestJEXLCompileIsCachedBySource(t *testing.T) {
	j := newJEXLInterpreter()
	p1, err := j.compile(`1 + 1`)
	require.NoError(t, err)
	p2, err := j.compile(`1 + 1`)
	require.NoError(t, err)
	require.Same(t, p1, p2)
}
