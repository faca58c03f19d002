package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/shamir-custody/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues(OpSplit, StatusSuccess))
	RecordOperation(OpSplit, time.Now(), nil)
	assert.Equal(t, before+1, testutil.ToFloat64(OperationsTotal.WithLabelValues(OpSplit, StatusSuccess)))

	errBefore := testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpDecode, "integrity"))
	RecordOperation(OpDecode, time.Now(), &interfaces.IntegrityError{Err: interfaces.ErrCRCMismatch})
	assert.Equal(t, errBefore+1, testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpDecode, "integrity")))

	assert.Positive(t, testutil.CollectAndCount(OperationDuration))
}

func TestRecordStorage(t *testing.T) {
	before := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("file", OpStore, StatusError))
	RecordStorage("file", OpStore, errors.New("disk full"))
	assert.Equal(t, before+1, testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("file", OpStore, StatusError)))
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&interfaces.ValidationError{Code: "X", Err: interfaces.ErrEmptySecret}, "validation"},
		{&interfaces.FormatError{Err: interfaces.ErrInvalidMagic}, "format"},
		{&interfaces.IntegrityError{Err: interfaces.ErrMACMismatch}, "integrity"},
		{&interfaces.VerificationError{Code: "X", Err: interfaces.ErrDuplicateShare}, "verification"},
		{&interfaces.ReconstructionError{Err: interfaces.ErrCorruptSecret}, "reconstruction"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorType(tt.err))
	}
}

func TestMetricsServerHandler(t *testing.T) {
	RecordOperation(OpVerify, time.Now(), nil)

	srv, err := New("test", "127.0.0.1:0")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "shamir_operations_total")
	assert.Contains(t, string(body), "go_goroutines")
}
