package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type lockError struct{}

func (*lockError) Error() string { return "locked" }

func TestClassify(t *testing.T) {
	assert.Empty(t, Classify(nil))
	assert.Equal(t, "errors_errorstring", Classify(errors.New("x")))
	assert.Equal(t, "errors_lockerror", Classify(fmt.Errorf("outer: %w", &lockError{})))
}
