package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscan/fieldscan/internal/checklist"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/httpclient"
	"github.com/fieldscan/fieldscan/internal/logger"
)

const baseURL = "https://backend.test"

var errReauth = errors.NewStd("reauthentication required")

type fakeTokens struct {
	mu         sync.Mutex
	token      string
	next       string
	refreshErr error
	refreshes  int
}

func (f *fakeTokens) AccessToken(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, nil
}

func (f *fakeTokens) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.token = f.next
	return nil
}

// setupHTTPMock builds a client whose transport is replaced by httpmock
func setupHTTPMock(t *testing.T, tokens TokenSource) *Client {
	t.Helper()
	hc := httpclient.New(nil)
	httpmock.ActivateNonDefault(hc.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	return New(Config{BaseURL: baseURL + "/", MinutesPerCheckpoint: 4}, hc, tokens,
		logger.NewSlogLogger(nil, logger.LogLevelError, nil))
}

func decodeBody(t *testing.T, req *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func sampleSubmission() *checklist.Submission {
	return &checklist.Submission{
		EquipmentCode: "PU",
		PerformedBy:   "tech-7",
		Results: []checklist.Result{
			{CheckpointID: 1, Status: checklist.StatusOK},
			{CheckpointID: 2, Status: checklist.StatusDeviation, Comment: "leak"},
			{CheckpointID: 3, Value: "2.5"},
		},
		Notes:       "basement",
		CompletedAt: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestFetchChecklist_Generate(t *testing.T) {
	c := setupHTTPMock(t, &fakeTokens{token: "tok-1"})

	httpmock.RegisterResponder(http.MethodPost, baseURL+pathGenerate,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
			body := decodeBody(t, req)
			assert.Equal(t, "PU", body["equipment_code"])
			assert.Equal(t, "noisy", body["context"])
			return httpmock.NewStringResponse(http.StatusOK, `{
				"checkpoints":[{"id":1,"text":"Check noise","type":"inspection","criticality":"high"},{"id":2,"text":"Pressure","type":"measurement"}],
				"tips":["Listen for cavitation"],
				"estimated_minutes":12}`), nil
		})

	cl, err := c.FetchChecklist(context.Background(), FetchRequest{EquipmentCode: " pu ", Context: "noisy"})
	require.NoError(t, err)
	assert.Equal(t, "PU", cl.EquipmentCode)
	require.Len(t, cl.Checkpoints, 2)
	require.NotNil(t, cl.Checkpoints[0].Criticality)
	assert.Equal(t, checklist.CriticalityHigh, *cl.Checkpoints[0].Criticality)
	assert.True(t, cl.Checkpoints[1].IsMeasurement())
	assert.Equal(t, []string{"Listen for cavitation"}, cl.Tips)
	assert.Equal(t, 12, cl.EstimatedMinutes)
}

func TestFetchChecklist_NotImplementedFallsBack(t *testing.T) {
	c := setupHTTPMock(t, nil)

	httpmock.RegisterResponder(http.MethodPost, baseURL+pathGenerate,
		httpmock.NewStringResponder(http.StatusNotImplemented, `{"error":"not implemented"}`))
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/equipment/VI/checkpoints",
		httpmock.NewStringResponder(http.StatusOK, `[{"id":1,"text":"Belt"},{"id":2,"text":"Bearings"},{"id":3,"text":"Filter"}]`))

	cl, err := c.FetchChecklist(context.Background(), FetchRequest{EquipmentCode: "VI"})
	require.NoError(t, err)
	assert.Len(t, cl.Checkpoints, 3)
	assert.Empty(t, cl.Tips)
	assert.Equal(t, 12, cl.EstimatedMinutes, "3 checkpoints x 4 minutes")
}

func TestFetchChecklist_Errors(t *testing.T) {
	c := setupHTTPMock(t, nil)

	httpmock.RegisterResponder(http.MethodPost, baseURL+pathGenerate,
		httpmock.NewStringResponder(http.StatusOK, `{"checkpoints": "oops"`))
	_, err := c.FetchChecklist(context.Background(), FetchRequest{EquipmentCode: "PU"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
	assert.True(t, errors.IsTransient(err))

	httpmock.RegisterResponder(http.MethodPost, baseURL+pathGenerate,
		httpmock.NewErrorResponder(assert.AnError))
	_, err = c.FetchChecklist(context.Background(), FetchRequest{EquipmentCode: "PU"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))

	httpmock.RegisterResponder(http.MethodPost, baseURL+pathGenerate,
		httpmock.NewStringResponder(http.StatusBadGateway, `bad gateway`))
	_, err = c.FetchChecklist(context.Background(), FetchRequest{EquipmentCode: "PU"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))

	_, err = c.FetchChecklist(context.Background(), FetchRequest{EquipmentCode: " "})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestSubmit_Success(t *testing.T) {
	c := setupHTTPMock(t, nil)

	httpmock.RegisterResponder(http.MethodPost, baseURL+pathSubmit,
		func(req *http.Request) (*http.Response, error) {
			body := decodeBody(t, req)
			assert.Equal(t, "PU", body["equipment_code"])
			assert.Equal(t, "tech-7", body["performed_by"])
			assert.Equal(t, "2026-05-04T10:00:00Z", body["completed_at"])
			results, ok := body["results"].([]any)
			require.True(t, ok)
			require.Len(t, results, 3)
			third, ok := results[2].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "not_assessed", third["status"])
			return httpmock.NewStringResponse(http.StatusCreated, `{"success":true,"job_id":"job-42"}`), nil
		})

	res, err := c.Submit(context.Background(), sampleSubmission())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "job-42", res.JobID)
	assert.False(t, res.Legacy)
}

func TestSubmit_RouteNotFoundUsesLegacy(t *testing.T) {
	c := setupHTTPMock(t, nil)

	httpmock.RegisterResponder(http.MethodPost, baseURL+pathSubmit,
		httpmock.NewStringResponder(http.StatusNotFound, `{"error":"no route"}`))
	httpmock.RegisterResponder(http.MethodPost, baseURL+"/api/equipment/PU/results",
		func(req *http.Request) (*http.Response, error) {
			body := decodeBody(t, req)
			assert.Equal(t, "tech-7", body["performed_by"])
			points, ok := body["points"].([]any)
			require.True(t, ok)
			require.Len(t, points, 3)
			want := []string{"OK", "AVVIK", "IKKE_VURDERT"}
			for i, p := range points {
				point, ok := p.(map[string]any)
				require.True(t, ok)
				assert.Equal(t, want[i], point["result"])
			}
			return httpmock.NewStringResponse(http.StatusOK, ``), nil
		})

	res, err := c.Submit(context.Background(), sampleSubmission())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Legacy)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestSubmit_SuccessFalseIsRejected(t *testing.T) {
	c := setupHTTPMock(t, nil)
	httpmock.RegisterResponder(http.MethodPost, baseURL+pathSubmit,
		httpmock.NewStringResponder(http.StatusOK, `{"success":false,"message":"duplicate"}`))

	res, err := c.Submit(context.Background(), sampleSubmission())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	require.NotNil(t, res)
	assert.Equal(t, "duplicate", res.Message)
}

func TestSubmit_InvalidSubmissionNotSent(t *testing.T) {
	c := setupHTTPMock(t, nil)
	s := sampleSubmission()
	s.PerformedBy = ""

	_, err := c.Submit(context.Background(), s)
	require.Error(t, err)
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestUnauthorized_RefreshAndRetryOnce(t *testing.T) {
	tokens := &fakeTokens{token: "expired", next: "fresh"}
	c := setupHTTPMock(t, tokens)

	httpmock.RegisterResponder(http.MethodPost, baseURL+pathSubmit,
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Authorization") != "Bearer fresh" {
				return httpmock.NewStringResponse(http.StatusUnauthorized, ``), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"success":true}`), nil
		})

	_, err := c.Submit(context.Background(), sampleSubmission())
	require.NoError(t, err)
	assert.Equal(t, 1, tokens.refreshes)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestUnauthorized_RefreshFailureSurfaces(t *testing.T) {
	tokens := &fakeTokens{token: "expired", refreshErr: errReauth}
	c := setupHTTPMock(t, tokens)

	httpmock.RegisterResponder(http.MethodPost, baseURL+pathSubmit,
		httpmock.NewStringResponder(http.StatusUnauthorized, ``))

	_, err := c.Submit(context.Background(), sampleSubmission())
	require.Error(t, err)
	assert.ErrorIs(t, err, errReauth)
	assert.True(t, errors.IsCategory(err, errors.CategoryAuth))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestUnauthorized_SecondRejectionIsNotRetried(t *testing.T) {
	tokens := &fakeTokens{token: "a", next: "b"}
	c := setupHTTPMock(t, tokens)

	httpmock.RegisterResponder(http.MethodPost, baseURL+pathSubmit,
		httpmock.NewStringResponder(http.StatusUnauthorized, ``))

	_, err := c.Submit(context.Background(), sampleSubmission())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
	assert.Equal(t, 1, tokens.refreshes)
}

func TestEquipmentCodes_Cached(t *testing.T) {
	c := setupHTTPMock(t, nil)
	httpmock.RegisterResponder(http.MethodGet, baseURL+pathEquipmentCodes,
		httpmock.NewStringResponder(http.StatusOK, `[{"code":"PU","name":"Pump","category":"pump"},{"code":"VI","name":"Fan","category":"fan"}]`))

	for range 3 {
		defs, err := c.EquipmentCodes(context.Background())
		require.NoError(t, err)
		require.Len(t, defs, 2)
		assert.Equal(t, "PU", defs[0].Code)
	}
	assert.Equal(t, 1, httpmock.GetTotalCallCount())

	c.InvalidateCatalogue()
	_, err := c.EquipmentCodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestProbe(t *testing.T) {
	c := setupHTTPMock(t, nil)

	tests := []struct {
		name      string
		responder httpmock.Responder
		reachable bool
	}{
		{"ok", httpmock.NewStringResponder(http.StatusOK, `ok`), true},
		{"not found still reachable", httpmock.NewStringResponder(http.StatusNotFound, ``), true},
		{"server error", httpmock.NewStringResponder(http.StatusServiceUnavailable, ``), false},
		{"transport error", httpmock.NewErrorResponder(assert.AnError), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"/health", tt.responder)
			err := c.Probe(context.Background())
			assert.Equal(t, tt.reachable, err == nil)
		})
	}
}
