package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smarttraffic/trafficd/internal/model"
)

// HTTPDetector talks to an external detection service over HTTP. Frames go
// out as multipart form uploads; counts come back as JSON.
type HTTPDetector struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger

	confidenceThreshold float64
	nmsThreshold        float64
}

// detectResponse is the service's answer for one frame.
type detectResponse struct {
	Counts map[string]int `json:"counts"`
}

func NewHTTPDetector(cfg model.DetectorConfig, logger *logrus.Logger) *HTTPDetector {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDetector{
		baseURL:             cfg.BaseURL,
		httpClient:          &http.Client{Timeout: timeout},
		logger:              logger,
		confidenceThreshold: cfg.ConfidenceThreshold,
		nmsThreshold:        cfg.NMSThreshold,
	}
}

// Detect uploads the frame and normalizes the response into vehicle counts.
// Timeouts map to ErrDetectorTimeout, transport and 5xx errors to
// ErrDetectorUnavailable; both are recoverable.
func (d *HTTPDetector) Detect(ctx context.Context, frame *model.Frame) (model.VehicleCounts, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fileWriter, err := writer.CreateFormFile("frame", frame.ID+".jpg")
	if err != nil {
		return nil, d.wrap(frame, fmt.Errorf("create form file: %w", err))
	}
	if _, err := fileWriter.Write(frame.Data); err != nil {
		return nil, d.wrap(frame, fmt.Errorf("write frame data: %w", err))
	}
	if err := writer.WriteField("confidence_threshold", fmt.Sprintf("%.2f", d.confidenceThreshold)); err != nil {
		return nil, d.wrap(frame, fmt.Errorf("write confidence field: %w", err))
	}
	if err := writer.WriteField("nms_threshold", fmt.Sprintf("%.2f", d.nmsThreshold)); err != nil {
		return nil, d.wrap(frame, fmt.Errorf("write nms field: %w", err))
	}
	if err := writer.Close(); err != nil {
		return nil, d.wrap(frame, fmt.Errorf("close multipart writer: %w", err))
	}

	url := fmt.Sprintf("%s/detect", d.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, d.wrap(frame, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	d.logger.WithFields(logrus.Fields{
		"frame":  frame.ID,
		"source": frame.SourceID,
		"bytes":  len(frame.Data),
	}).Debug("sending frame for detection")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, d.wrap(frame, fmt.Errorf("%w: %v", model.ErrDetectorTimeout, err))
		}
		return nil, d.wrap(frame, fmt.Errorf("%w: %v", model.ErrDetectorUnavailable, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, d.wrap(frame, fmt.Errorf("%w: read response: %v", model.ErrDetectorUnavailable, err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, d.wrap(frame, fmt.Errorf("%w: status %d: %s",
			model.ErrDetectorUnavailable, resp.StatusCode, string(respBody)))
	}

	var parsed detectResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, d.wrap(frame, fmt.Errorf("%w: parse response: %v", model.ErrDetectorUnavailable, err))
	}

	counts := normalizeCounts(parsed.Counts)
	if err := counts.Validate(); err != nil {
		return nil, d.wrap(frame, err)
	}

	d.logger.WithFields(logrus.Fields{
		"frame": frame.ID,
		"total": counts.Total(),
	}).Debug("detection complete")
	return counts, nil
}

// Health probes the service's health endpoint.
func (d *HTTPDetector) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", d.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrDetectorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", model.ErrDetectorUnavailable, resp.StatusCode)
	}
	return nil
}

func (d *HTTPDetector) wrap(frame *model.Frame, err error) error {
	return &model.DetectionError{SourceID: frame.SourceID, Err: err}
}

// normalizeCounts keeps only the vehicle types the controller knows about.
// Detectors report other classes (person, bicycle, ...) that carry no weight
// in signal timing.
func normalizeCounts(raw map[string]int) model.VehicleCounts {
	counts := model.VehicleCounts{}
	for name, n := range raw {
		t := model.VehicleType(name)
		if t.Valid() {
			counts[t] = n
		}
	}
	return counts
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return os.IsTimeout(err)
}
