package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/profile-finder/internal/model"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) HTTPStatus() int { return e.code }

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("x"), 0), true},
		{"wrapped explicit", eris.Wrap(NewTransientError(errors.New("x"), 503), "ctx"), true},
		{"status 429", statusErr{http.StatusTooManyRequests}, true},
		{"status 404", statusErr{http.StatusNotFound}, false},
		{"wrapped status 502", fmt.Errorf("call: %w", statusErr{http.StatusBadGateway}), true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"conn reset", syscall.ECONNRESET, true},
		{"string pattern", errors.New("read tcp: i/o timeout"), true},
		{"plain", errors.New("invalid api key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestWrapTransient(t *testing.T) {
	t.Parallel()

	assert.NoError(t, WrapTransient(nil, "x"))
	err := WrapTransient(errors.New("chrome crashed"), "browser: launch")
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "chrome crashed")
}

func TestNewDeadLetter(t *testing.T) {
	t.Parallel()

	q := model.PersonQuery{FirstName: "Alice", LastName: "Smith", Affiliation: "KU"}
	dl := NewDeadLetter("batch-1", q, NewTransientError(errors.New("503"), 503), 3)
	assert.NotEmpty(t, dl.ID)
	assert.Equal(t, "batch-1", dl.BatchID)
	assert.Equal(t, q, dl.Query)
	assert.Equal(t, ErrorTypeTransient, dl.ErrorType)
	assert.Equal(t, 3, dl.Attempts)
	assert.Equal(t, "503", dl.Error)
	assert.False(t, dl.CreatedAt.IsZero())

	assert.Equal(t, ErrorTypePermanent, ClassifyError(errors.New("boom")))
}
