package xcontext

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testSetClientDefault(t *testing.T) {
	ctx := SetClient(nil)(context.Background(), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.DefaultClient, GetClient(ctx))
}

func testSetClientCustom(t *testing.T) {
	expected := new(http.Client)
	ctx := SetClient(expected)(context.Background(), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, expected, GetClient(ctx))
}

func TestSetClient(t *testing.T) {
	t.Run("Default", testSetClientDefault)
	t.Run("Custom", testSetClientCustom)
}
