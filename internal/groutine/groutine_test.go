package groutine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/srg/bleproxy/internal/groutine"
	"github.com/stretchr/testify/assert"
)

func TestGoReportsResultAndName(t *testing.T) {
	sentinel := errors.New("stopped")
	var seen string

	done := groutine.Go(context.Background(), "worker", func(ctx context.Context) error {
		seen = groutine.Name(ctx)
		return sentinel
	})

	assert.ErrorIs(t, <-done, sentinel)
	assert.Equal(t, "worker", seen)

	_, open := <-done
	assert.False(t, open)
}

func TestNameWithoutLabel(t *testing.T) {
	assert.Equal(t, "", groutine.Name(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.Equal(t, "", groutine.Name(nil))
}
