package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeFor_UnwrapsCliError(t *testing.T) {
	assert.Equal(t, 1, ExitCodeFor(exitErr(1, errors.New("boom"))))
	assert.Equal(t, 2, ExitCodeFor(exitErr(2, errors.New("boom"))))
}

func TestExitCodeFor_DefaultsToTwoForPlainErrors(t *testing.T) {
	assert.Equal(t, 2, ExitCodeFor(errors.New("plain")))
}

func TestExitErr_NilErrorStaysNil(t *testing.T) {
	assert.NoError(t, exitErr(1, nil))
}
