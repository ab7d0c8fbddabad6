package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/secretref/internal/errors"
)

func failure(kind dserrors.Kind, path, ref string) *dserrors.ResolutionError {
	return dserrors.NewResolutionError(kind, path, ref, "")
}

func TestResult_Require(t *testing.T) {
	t.Parallel()

	res := &Result{Failures: []*dserrors.ResolutionError{
		failure(dserrors.NotFound, "b.d", "${gcp:k2}"),
		failure(dserrors.Timeout, "items[1].token", "${aws:t}"),
	}}

	assert.False(t, res.OK())
	assert.NoError(t, res.Require("a", "b.c", "bd", "items[0]"))
	assert.Error(t, res.Require("b"))
	assert.Error(t, res.Require("b.d"))
	assert.Error(t, res.Require("items"))
	assert.Error(t, res.Require("items[1]"))

	err := res.Require("b")
	var re *dserrors.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "b.d", re.Path)
	assert.Contains(t, err.Error(), "${gcp:k2}")

	assert.Len(t, res.FailuresAt("items"), 1)
	assert.Len(t, res.FailuresAt(""), 2)
}

func TestResult_Err(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (&Result{}).Err())

	one := &Result{Failures: []*dserrors.ResolutionError{failure(dserrors.PermissionDenied, "db.password", "${gcp:db}")}}
	err := one.Err()
	require.Error(t, err)
	var ue dserrors.UserError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Message, "db.password")
	assert.Contains(t, ue.Suggestion, "read access")

	two := &Result{Failures: []*dserrors.ResolutionError{
		failure(dserrors.NotFound, "a", "${gcp:a}"),
		failure(dserrors.UnknownProvider, "b", "${x:b}"),
	}}
	err = two.Err()
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Message, "2 secret references")
	assert.Contains(t, ue.Details, "UnknownProvider at b")
}

func TestWarning_String(t *testing.T) {
	t.Parallel()

	w := Warning{Reference: "${gcp:k}", Age: 2 * time.Minute, Detail: "connection reset"}
	assert.Equal(t, "${gcp:k} served from cache (2m0s old): connection reset", w.String())
}

func TestUnder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path, prefix string
		want         bool
	}{
		{"a.b", "", true},
		{"a.b", "a", true},
		{"a.b", "a.b", true},
		{"a[0]", "a", true},
		{"ab", "a", false},
		{"a", "a.b", false},
		{`a["x.y"]`, "a", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, under(tt.path, tt.prefix), "%s under %s", tt.path, tt.prefix)
	}
}

func TestGetTimeoutSuggestion(t *testing.T) {
	t.Parallel()

	assert.Contains(t, getTimeoutSuggestion("aws.ssm", 2*time.Second), "increasing timeout_ms")
	assert.Contains(t, getTimeoutSuggestion("aws.secretsmanager", 30*time.Second), "region")
	assert.Contains(t, getTimeoutSuggestion("vault", 30*time.Second), "VAULT_ADDR")
	assert.Contains(t, getTimeoutSuggestion("memory", time.Second), "timeout_ms")
}

func TestWithProviderTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := withProviderTimeout(context.Background(), 0)
	defer cancel()
	_, hasDeadline := ctx.Deadline()
	assert.False(t, hasDeadline)

	ctx2, cancel2 := withProviderTimeout(context.Background(), time.Minute)
	defer cancel2()
	_, hasDeadline = ctx2.Deadline()
	assert.True(t, hasDeadline)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	assert.Contains(t, deadlineDetail(cancelled), "cancelled")
}
