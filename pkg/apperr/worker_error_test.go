package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("run calls: %w", SyncInProgress("conn-1", "calls"))

	assert.True(t, HasCode(err, CodeSyncInProgress))
	assert.False(t, HasCode(err, CodeSourceError))
	assert.False(t, HasCode(errors.New("plain"), CodeSyncInProgress))
	assert.Equal(t, http.StatusConflict, GetHTTPStatus(err))
}

func TestSourceError_Unwraps(t *testing.T) {
	cause := errors.New("502 from source")
	err := SourceError("conn-1", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
	assert.Equal(t, "conn-1", err.Details["connection_id"])
	assert.Contains(t, err.Error(), "[SOURCE_ERROR]")
}

func TestAsAppError_DefaultsToInternal(t *testing.T) {
	appErr := AsAppError(errors.New("boom"))
	assert.Equal(t, CodeInternalError, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("boom")))

	original := UnknownJob("emails")
	assert.Same(t, original, AsAppError(original))
}
