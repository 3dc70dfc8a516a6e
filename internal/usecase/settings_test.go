package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSettings_MissingRecordsReadEmpty(t *testing.T) {
	svc := newTestService(t, &fakeLLM{}, newFakeRecords())

	settings, err := svc.GetSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, Settings{}, settings)
}

func TestSettings_RoundTrip(t *testing.T) {
	svc := newTestService(t, &fakeLLM{}, newFakeRecords())
	ctx := context.Background()

	require.NoError(t, svc.PutSettings(ctx, Settings{UserName: "Ada", Theme: "dark"}))

	settings, err := svc.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, Settings{UserName: "Ada", Theme: "dark"}, settings)
}

func TestPutSettings_EmptyValueRemovesRecord(t *testing.T) {
	records := newFakeRecords()
	svc := newTestService(t, &fakeLLM{}, records)
	ctx := context.Background()

	require.NoError(t, svc.PutSettings(ctx, Settings{UserName: "Ada", Theme: "dark"}))
	require.NoError(t, svc.PutSettings(ctx, Settings{UserName: "", Theme: "light"}))

	require.NotContains(t, records.data, "crystallize_username")
	require.Equal(t, "light", records.data["crystallize_theme"])
}

func TestGetSettings_ReadError(t *testing.T) {
	records := newFakeRecords()
	records.getErr = errors.New("dynamodb down")
	svc := newTestService(t, &fakeLLM{}, records)

	_, err := svc.GetSettings(context.Background())
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorInternal, ue.Code)
	require.Equal(t, "settings_read_error", ue.Reason)
}

func TestPutSettings_WriteError(t *testing.T) {
	records := newFakeRecords()
	records.putErr = errors.New("dynamodb down")
	svc := newTestService(t, &fakeLLM{}, records)

	err := svc.PutSettings(context.Background(), Settings{UserName: "Ada"})
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "settings_write_error", ue.Reason)
}
