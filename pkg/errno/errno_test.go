package errno

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	code, msg := Decode(nil)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Success", msg)

	code, _ = Decode(ErrIncorrectSecret)
	assert.Equal(t, 30101, code)

	code, msg = Decode(fmt.Errorf("wrapped: %w", ErrInvalidRequest.WithMessage("nomination list is empty")))
	assert.Equal(t, 30001, code)
	assert.Equal(t, "nomination list is empty", msg)

	code, msg = Decode(errors.New("boom"))
	assert.Equal(t, InternalServerError.Code, code)
	assert.Equal(t, "boom", msg)
}
