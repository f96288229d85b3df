package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/face-attendance-api/pkg/config"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
	"github.com/noah-isme/face-attendance-api/pkg/retry"
)

// FailureKind tags why a recognition pass produced no candidates.
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureUnavailable  FailureKind = "unavailable"
	FailureTimeout      FailureKind = "timeout"
	FailureServiceError FailureKind = "service_error"
)

// Candidate is a single recognized student returned by the face service.
type Candidate struct {
	StudentID  string  `json:"student_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of one recognition call. When Failure is set
// the candidate list is empty and the caller decides how to degrade.
type Result struct {
	Recognized        []Candidate `json:"recognized_students"`
	FacesDetected     int         `json:"faces_detected"`
	UnregisteredFaces int         `json:"unregistered_faces"`
	ProcessingTime    float64     `json:"processing_time"`
	Failure           FailureKind `json:"failure,omitempty"`
	FailureDetail     string      `json:"failure_detail,omitempty"`
}

// Failed reports whether the call produced no usable candidates.
func (r Result) Failed() bool {
	return r.Failure != FailureNone
}

type singleRequest struct {
	ImageData           string  `json:"imageData"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

type batchRequest struct {
	Images              []string `json:"images"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
}

type registerRequest struct {
	StudentID  string   `json:"student_id"`
	Name       string   `json:"name"`
	FaceImages []string `json:"face_images"`
}

type deleteRequest struct {
	StudentID string `json:"student_id"`
}

type serviceResponse struct {
	Success           bool        `json:"success"`
	Recognized        []Candidate `json:"recognized_students"`
	FacesDetected     int         `json:"faces_detected"`
	TotalFaces        int         `json:"total_faces_detected"`
	UnregisteredFaces int         `json:"unregistered_faces"`
	ProcessingTime    float64     `json:"processing_time"`
	Error             string      `json:"error"`
	Message           string      `json:"message"`
}

// facesDetected normalises the count field. The single endpoint
// reports faces_detected, the batch endpoint total_faces_detected.
func (r serviceResponse) facesDetected() int {
	if r.TotalFaces > 0 {
		return r.TotalFaces
	}
	return r.FacesDetected
}

type healthResponse struct {
	Status string `json:"status"`
}

// Client talks to the external face recognition service over HTTP.
// Recognition calls are health-gated: a failing health probe turns
// into an unavailable-tagged result without attempting the real call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cfg        config.RecognitionConfig
	logger     *zap.Logger
}

// NewClient constructs a recognition client from configuration.
func NewClient(cfg config.RecognitionConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		cfg:        cfg,
		logger:     logger,
	}
}

// Healthy probes the service health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return strings.EqualFold(health.Status, "OK")
}

// RecognizeSingle submits one image for recognition. Gateway-level
// failures are reported on the Result, not as errors, so a marking
// pass can degrade instead of aborting.
func (c *Client) RecognizeSingle(ctx context.Context, imageData string) Result {
	payload := singleRequest{ImageData: imageData, ConfidenceThreshold: c.threshold()}
	return c.recognize(ctx, "/process_single_image", payload, c.cfg.Timeout)
}

// RecognizeBatch submits multiple images in one call. The face service
// already deduplicates students across frames keeping the highest
// confidence per student.
func (c *Client) RecognizeBatch(ctx context.Context, images []string) Result {
	payload := batchRequest{Images: images, ConfidenceThreshold: c.threshold()}
	return c.recognize(ctx, "/process_batch_images", payload, c.cfg.BatchTimeout)
}

func (c *Client) recognize(ctx context.Context, path string, payload interface{}, timeout time.Duration) Result {
	if !c.Healthy(ctx) {
		c.logger.Warn("recognition service unhealthy", zap.String("path", path))
		return Result{Failure: FailureUnavailable, FailureDetail: "health probe failed"}
	}

	var svcResp serviceResponse
	policy := retry.Policy{MaxAttempts: c.cfg.MaxRetries, BaseDelay: c.cfg.RetryBaseDelay}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return c.post(ctx, path, payload, timeout, &svcResp)
	})
	if err != nil {
		kind := FailureServiceError
		if errors.Is(err, context.DeadlineExceeded) {
			kind = FailureTimeout
		} else if errors.Is(err, appErrors.ErrServiceUnavailable) {
			kind = FailureUnavailable
		}
		c.logger.Error("recognition call failed",
			zap.String("path", path),
			zap.String("failure", string(kind)),
			zap.Error(err))
		return Result{Failure: kind, FailureDetail: err.Error()}
	}

	if !svcResp.Success {
		detail := svcResp.Error
		if detail == "" {
			detail = "recognition rejected the request"
		}
		return Result{Failure: FailureServiceError, FailureDetail: detail}
	}

	recognized := svcResp.Recognized
	if recognized == nil {
		recognized = []Candidate{}
	}
	return Result{
		Recognized:        recognized,
		FacesDetected:     svcResp.facesDetected(),
		UnregisteredFaces: svcResp.UnregisteredFaces,
		ProcessingTime:    svcResp.ProcessingTime,
	}
}

// RegisterStudent enrolls a student's face images with the service.
// The service requires at least two images.
func (c *Client) RegisterStudent(ctx context.Context, studentID, name string, faceImages []string) error {
	if len(faceImages) < 2 {
		return appErrors.Clone(appErrors.ErrValidation, "at least two face images are required")
	}
	payload := registerRequest{StudentID: studentID, Name: name, FaceImages: faceImages}
	var svcResp serviceResponse
	if err := c.post(ctx, "/register_student", payload, c.cfg.RegisterTimeout, &svcResp); err != nil {
		return err
	}
	if !svcResp.Success {
		msg := svcResp.Error
		if msg == "" {
			msg = "face registration rejected"
		}
		return appErrors.New("FACE_REGISTRATION_FAILED", http.StatusBadGateway, msg)
	}
	return nil
}

// DeleteStudent removes a student's face encodings from the service.
func (c *Client) DeleteStudent(ctx context.Context, studentID string) error {
	var svcResp serviceResponse
	if err := c.post(ctx, "/delete_student", deleteRequest{StudentID: studentID}, c.cfg.Timeout, &svcResp); err != nil {
		return err
	}
	if !svcResp.Success {
		msg := svcResp.Error
		if msg == "" {
			msg = "face deletion rejected"
		}
		return appErrors.New("FACE_DELETION_FAILED", http.StatusBadGateway, msg)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, timeout time.Duration, dest *serviceResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal recognition request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build recognition request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", appErrors.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", appErrors.ErrServiceUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode recognition response: %w", err)
	}
	return nil
}

func (c *Client) threshold() float64 {
	if c.cfg.ConfidenceThreshold > 0 {
		return c.cfg.ConfidenceThreshold
	}
	return 0.6
}
