package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTerminateEchoesStatus(t *testing.T) {
	res, err := Terminate{}.Execute(context.Background(), json.RawMessage(`{"status":"failure"}`))
	require.NoError(t, err)
	require.False(t, res.IsError())
	require.Contains(t, res.Output, "failure")
}

func TestTerminateDefaultsToSuccess(t *testing.T) {
	res, err := Terminate{}.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.Contains(t, res.Output, "success")
}

func TestTerminateRejectsMalformedArguments(t *testing.T) {
	res, err := Terminate{}.Execute(context.Background(), json.RawMessage(`{broken`))
	require.NoError(t, err)
	require.True(t, res.IsError())
}
