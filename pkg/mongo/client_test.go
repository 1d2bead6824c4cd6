package mongo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifyhub/pkg/mongo"
)

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()

	_, err := mongo.New(context.Background(), mongo.Config{})
	assert.ErrorIs(t, err, mongo.ErrEmptyConnectionURL)
}

func TestIsDuplicateKeyError(t *testing.T) {
	t.Parallel()

	assert.False(t, mongo.IsDuplicateKeyError(nil))
	assert.False(t, mongo.IsDuplicateKeyError(errors.New("boom")))
}
