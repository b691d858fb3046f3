package backend

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fieldscan/fieldscan/internal/checklist"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/httpclient"
	"github.com/fieldscan/fieldscan/internal/logger"
)

// FetchRequest asks for the checklist of one equipment code
type FetchRequest struct {
	EquipmentCode string `json:"equipment_code"`
	Context       string `json:"context,omitempty"`
	Location      string `json:"location,omitempty"`
}

type generateResponse struct {
	Checkpoints      []checklist.Checkpoint `json:"checkpoints"`
	Tips             []string               `json:"tips"`
	EstimatedMinutes int                    `json:"estimated_minutes"`
}

const (
	pathGenerate = "/api/checklists/generate"
	pathSubmit   = "/api/checklists/submit"
)

// FetchChecklist requests a generated checklist. When generation is not
// implemented it falls back to the plain checkpoint list and estimates the
// duration from the checkpoint count.
func (c *Client) FetchChecklist(ctx context.Context, req FetchRequest) (*checklist.Checklist, error) {
	req.EquipmentCode = strings.ToUpper(strings.TrimSpace(req.EquipmentCode))
	if req.EquipmentCode == "" {
		return nil, errors.Newf("equipment code is required").
			Component("backend").
			Category(errors.CategoryValidation).
			Build()
	}

	resp, err := c.call(ctx, http.MethodPost, pathGenerate, req)
	if errors.Is(err, ErrNotImplemented) {
		c.log.Debug("checklist generation not implemented, using checkpoint lookup",
			logger.String("equipment_code", req.EquipmentCode))
		return c.fetchCheckpoints(ctx, req.EquipmentCode)
	}
	if err != nil {
		return nil, err
	}

	gen, err := decode[generateResponse](resp, pathGenerate)
	if err != nil {
		return nil, err
	}
	return &checklist.Checklist{
		EquipmentCode:    req.EquipmentCode,
		Checkpoints:      gen.Checkpoints,
		Tips:             gen.Tips,
		EstimatedMinutes: gen.EstimatedMinutes,
	}, nil
}

func (c *Client) fetchCheckpoints(ctx context.Context, code string) (*checklist.Checklist, error) {
	path := "/api/equipment/" + escape(code) + "/checkpoints"
	resp, err := c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	checkpoints, err := decode[[]checklist.Checkpoint](resp, path)
	if err != nil {
		return nil, err
	}
	return &checklist.Checklist{
		EquipmentCode:    code,
		Checkpoints:      checkpoints,
		EstimatedMinutes: len(checkpoints) * c.perItemMin,
	}, nil
}

// SubmitResult is the backend's acknowledgement
type SubmitResult struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message,omitempty"`
	Legacy  bool   `json:"-"`
}

type submitResponse struct {
	Success *bool  `json:"success"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

type submitResultBody struct {
	CheckpointID int    `json:"checkpoint_id"`
	Status       string `json:"status"`
	Value        string `json:"value,omitempty"`
	Comment      string `json:"comment,omitempty"`
}

type submitBody struct {
	EquipmentCode string             `json:"equipment_code"`
	PerformedBy   string             `json:"performed_by"`
	Results       []submitResultBody `json:"results"`
	Notes         string             `json:"notes,omitempty"`
	CompletedAt   time.Time          `json:"completed_at"`
}

type legacyPoint struct {
	ID      int    `json:"id"`
	Result  string `json:"result"`
	Value   string `json:"value,omitempty"`
	Comment string `json:"comment,omitempty"`
}

type legacyBody struct {
	EquipmentCode string        `json:"equipment_code"`
	Points        []legacyPoint `json:"points"`
	PerformedBy   string        `json:"performed_by"`
}

// Submit sends a completed checklist. An unknown route falls back to the
// legacy results endpoint. A 2xx response with success=false is returned as
// ErrRejected so the caller keeps the submission queued.
func (c *Client) Submit(ctx context.Context, s *checklist.Submission) (*SubmitResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	body := submitBody{
		EquipmentCode: s.EquipmentCode,
		PerformedBy:   s.PerformedBy,
		Results:       make([]submitResultBody, len(s.Results)),
		Notes:         s.Notes,
		CompletedAt:   s.CompletedAt.UTC(),
	}
	for i, r := range s.Results {
		body.Results[i] = submitResultBody{
			CheckpointID: r.CheckpointID,
			Status:       string(statusOrDefault(r.Status)),
			Value:        r.Value,
			Comment:      r.Comment,
		}
	}

	resp, err := c.call(ctx, http.MethodPost, pathSubmit, body)
	legacy := false
	if errors.Is(err, ErrRouteNotFound) {
		c.log.Info("submit route not found, using legacy results endpoint",
			logger.String("equipment_code", s.EquipmentCode))
		legacy = true
		resp, err = c.submitLegacy(ctx, s)
	}
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{Success: true, Legacy: legacy}
	if len(strings.TrimSpace(string(resp.Body))) > 0 {
		parsed, err := decode[submitResponse](resp, pathSubmit)
		if err != nil {
			return nil, err
		}
		if parsed.Success != nil {
			result.Success = *parsed.Success
		}
		result.JobID = parsed.JobID
		result.Message = parsed.Message
	}

	if !result.Success {
		return result, errors.New(ErrRejected).
			Component("backend").
			Category(errors.CategoryHTTP).
			Context("equipment_code", s.EquipmentCode).
			Context("message", result.Message).
			Build()
	}
	return result, nil
}

func (c *Client) submitLegacy(ctx context.Context, s *checklist.Submission) (*httpclient.Response, error) {
	body := legacyBody{
		EquipmentCode: s.EquipmentCode,
		PerformedBy:   s.PerformedBy,
		Points:        make([]legacyPoint, len(s.Results)),
	}
	for i, r := range s.Results {
		body.Points[i] = legacyPoint{
			ID:      r.CheckpointID,
			Result:  legacyResult(r.Status),
			Value:   r.Value,
			Comment: r.Comment,
		}
	}
	return c.call(ctx, http.MethodPost, "/api/equipment/"+escape(s.EquipmentCode)+"/results", body)
}

func statusOrDefault(s checklist.Status) checklist.Status {
	if s == "" {
		return checklist.StatusNotAssessed
	}
	return s
}

// legacyResult maps a status to the legacy uppercase vocabulary
func legacyResult(s checklist.Status) string {
	switch s {
	case checklist.StatusOK:
		return "OK"
	case checklist.StatusDeviation:
		return "AVVIK"
	default:
		return "IKKE_VURDERT"
	}
}
