package expr

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	p, err := Compile("user-${tenant}")
	require.NoError(t, err)
	assert.True(t, p.IsTemplate())
	assert.Equal(t, "user-${tenant}", p.Source())

	p, err = Compile("limit * 2")
	require.NoError(t, err)
	assert.False(t, p.IsTemplate())

	_, err = Compile("limit *")
	assert.True(t, errors.Is(err, ErrCompile))

	_, err = Compile("  ")
	assert.True(t, errors.Is(err, ErrCompile))
}

func TestEvaluator_Eval(t *testing.T) {
	e := NewEvaluator()
	env := Env{
		"tenant": "acme",
		"limit":  10,
		"user":   map[string]any{"name": "Ada", "admin": true},
	}

	tests := []struct {
		src  string
		want any
	}{
		{"user-${tenant}", "user-acme"},
		{"`quoted`-${user.name}", "`quoted`-Ada"},
		{"limit * 2", int64(20)},
		{"limit / 4", 2.5},
		{"user.admin", true},
		{"'fixed'", "fixed"},
		{"null", nil},
		{"undefined", nil},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := e.Eval(MustCompile(tt.src), env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_EnvDoesNotLeak(t *testing.T) {
	e := NewEvaluator()
	p := MustCompile("typeof tenant === 'undefined' ? 'none' : tenant")

	got, err := e.Eval(p, Env{"tenant": "acme"})
	require.NoError(t, err)
	assert.Equal(t, "acme", got)

	got, err = e.Eval(p, nil)
	require.NoError(t, err)
	assert.Equal(t, "none", got)
}

func TestEvaluator_Errors(t *testing.T) {
	e := NewEvaluator()

	_, err := e.Eval(MustCompile("missing.name"), Env{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEval))

	_, err = e.Eval(MustCompile("(function(){ throw new Error('boom') })()"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestEvaluator_Timeout(t *testing.T) {
	e := NewEvaluator(WithTimeout(20 * time.Millisecond))

	_, err := e.Eval(MustCompile("(function(){ for(;;){} })()"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEval))

	got, err := e.Eval(MustCompile("1 + 1"), nil)
	require.NoError(t, err, "runtime is usable after an interrupt")
	assert.Equal(t, int64(2), got)
}

func TestEvaluator_Concurrent(t *testing.T) {
	e := NewEvaluator()
	p := MustCompile("n + 1")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := e.Eval(p, Env{"n": n})
			assert.NoError(t, err)
			assert.Equal(t, int64(n+1), got)
		}(i)
	}
	wg.Wait()
}
