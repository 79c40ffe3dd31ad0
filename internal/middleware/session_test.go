package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entityql/internal/dbexec"
)

func TestSessionMiddleware_PinsSessionPerRequest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	handler := SessionMiddleware(db)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := dbexec.SessionFromContext(r.Context())
		require.True(t, ok)
		rows, err := session.QueryContext(r.Context(), "SELECT 1")
		require.NoError(t, err)
		require.NoError(t, rows.Close())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionMiddleware_NilDB(t *testing.T) {
	handler := SessionMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := dbexec.SessionFromContext(r.Context())
		assert.False(t, ok)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql", nil))
}
