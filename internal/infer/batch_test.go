package infer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"deduce/internal/scope"
)

func chain(n int) [][]int {
	out := make([][]int, n)
	for i := range out {
		out[i] = []int{i, i + 1}
	}
	return out
}

func TestInferBatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEngine(t, func(c *Config) { c.BatchConcurrency = 3 })

	var reqs []Request
	for n := 1; n <= 8; n++ {
		reqs = append(reqs, Request{
			RuleSet:  transRules(),
			Bindings: []scope.Binding{scope.Bind("edge", chain(n))},
			Queries:  Names("path"),
		})
	}

	results, err := e.InferBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, len(reqs))
	for i, res := range results {
		n := i + 1
		assert.Equal(t, n*(n+1)/2, res.Relations["path"].Len(), fmt.Sprintf("chain of %d", n))
	}
}

func TestInferBatchFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEngine(t)

	reqs := []Request{
		{RuleSet: transRules(), Bindings: []scope.Binding{scope.Bind("edge", chain(3))}, Queries: Names("path")},
		{RuleSet: transRules(), Queries: Names("path")},
	}
	results, err := e.InferBatch(context.Background(), reqs)
	assert.ErrorIs(t, err, scope.ErrUnresolvedReference)
	assert.ErrorContains(t, err, "request 1")
	assert.Nil(t, results)
}
