package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError(t *testing.T) {
	err := Configf("Child", "Parent", "navigation target %s is abstract", "ParentBase")
	assert.Equal(t, "configuration error on Child (Parent): navigation target ParentBase is abstract", err.Error())

	var ce *ConfigError
	require.True(t, errors.As(fmt.Errorf("register: %w", err), &ce))
	assert.Equal(t, "Parent", ce.Member)
}

func TestWrapQuery(t *testing.T) {
	cause := errors.New("constraint violation")

	t.Run("keeps the cause", func(t *testing.T) {
		err := WrapQuery(cause, "children", "SELECT 1", "Child")
		var qe *QueryError
		require.True(t, errors.As(err, &qe))
		assert.Equal(t, "children", qe.Field)
		assert.Equal(t, "SELECT 1", qe.SQL)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "field children [Child]: constraint violation")
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		assert.Same(t, context.Canceled, WrapQuery(context.Canceled, "children", ""))
		wrapped := fmt.Errorf("scan: %w", context.DeadlineExceeded)
		assert.Equal(t, wrapped, WrapQuery(wrapped, "children", ""))
	})

	t.Run("fills field on existing query error", func(t *testing.T) {
		inner := &QueryError{SQL: "SELECT 2", Err: cause}
		err := WrapQuery(inner, "parent", "ignored")
		assert.Same(t, inner, err)
		assert.Equal(t, "parent", inner.Field)
		assert.Equal(t, "SELECT 2", inner.SQL)
	})

	t.Run("access denied is normalized", func(t *testing.T) {
		err := WrapQuery(&mysql.MySQLError{Number: 1142, Message: "SELECT command denied to user for table 'secret'"}, "f", "")
		assert.ErrorIs(t, err, ErrAccessDenied)
		assert.NotContains(t, err.Error(), "secret")
	})

	assert.Nil(t, WrapQuery(nil, "f", ""))
}

func TestIsCanceled(t *testing.T) {
	assert.True(t, IsCanceled(context.Canceled))
	assert.True(t, IsCanceled(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.False(t, IsCanceled(errors.New("boom")))
}

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{Field: "child", Type: "Child"}
	assert.Equal(t, "no Child found for field child", err.Error())
}
