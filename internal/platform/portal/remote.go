package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/rxguard/rxguard/internal/domain/prescription"
)

// SessionConfig is passed to the automation sidecar when a session opens.
type SessionConfig struct {
	PortalURL string `json:"portal_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Browser   string `json:"browser"` // A, B or C
	Headless  bool   `json:"headless"`
}

// RemoteDriver implements Driver against the browser-automation sidecar's
// HTTP API. One RemoteDriver maps to one sidecar session.
type RemoteDriver struct {
	baseURL   string
	sessionID string
	hc        *http.Client
}

// NewRemoteDriver opens a session on the sidecar at baseURL.
func NewRemoteDriver(ctx context.Context, baseURL string, cfg SessionConfig, timeout time.Duration) (*RemoteDriver, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	d := &RemoteDriver{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: timeout},
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := d.do(ctx, http.MethodPost, "/session", cfg, &resp); err != nil {
		return nil, fmt.Errorf("open portal session: %w", err)
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("sidecar returned no session id")
	}
	d.sessionID = resp.SessionID
	return d, nil
}

func (d *RemoteDriver) Login(ctx context.Context) error {
	return d.do(ctx, http.MethodPost, d.sessionPath("/login"), nil, nil)
}

func (d *RemoteDriver) NavigateToList(ctx context.Context) error {
	return d.do(ctx, http.MethodPost, d.sessionPath("/navigate"), nil, nil)
}

func (d *RemoteDriver) ApplyFilter(ctx context.Context, group Group) error {
	body := map[string]string{"group": string(group)}
	return d.do(ctx, http.MethodPost, d.sessionPath("/filter"), body, nil)
}

func (d *RemoteDriver) ExtractPrescriptions(ctx context.Context, limit int) ([]Summary, error) {
	path := d.sessionPath("/prescriptions")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var rows []struct {
		PrescriptionID string `json:"prescription_id"`
		PatientName    string `json:"patient_name"`
		RowIndex       int    `json:"row_index"`
	}
	if err := d.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, Summary{
			PrescriptionID: r.PrescriptionID,
			PatientName:    r.PatientName,
			RowIndex:       r.RowIndex,
		})
	}
	return out, nil
}

func (d *RemoteDriver) ExtractPrescriptionDetail(ctx context.Context, row Summary) (*prescription.Prescription, error) {
	path := d.sessionPath("/prescriptions/"+url.PathEscape(row.PrescriptionID)) +
		"?row=" + strconv.Itoa(row.RowIndex)
	var p prescription.Prescription
	if err := d.do(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *RemoteDriver) LookupActiveIngredient(ctx context.Context, drugName string) (string, error) {
	var resp struct {
		ActiveIngredient string `json:"active_ingredient"`
	}
	path := d.sessionPath("/drugs/" + url.PathEscape(drugName) + "/ingredient")
	if err := d.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	if resp.ActiveIngredient == "" {
		return "", ErrNotFound
	}
	return resp.ActiveIngredient, nil
}

func (d *RemoteDriver) LookupReportDose(ctx context.Context, reportCode, ingredient string) (string, error) {
	var resp struct {
		AuthorizedDose string `json:"authorized_dose"`
	}
	path := d.sessionPath("/reports/"+url.PathEscape(reportCode)+"/dose") +
		"?ingredient=" + url.QueryEscape(ingredient)
	if err := d.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	if resp.AuthorizedDose == "" {
		return "", ErrNotFound
	}
	return resp.AuthorizedDose, nil
}

func (d *RemoteDriver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.do(ctx, http.MethodDelete, d.sessionPath(""), nil, nil)
}

func (d *RemoteDriver) sessionPath(suffix string) string {
	return "/session/" + url.PathEscape(d.sessionID) + suffix
}

func (d *RemoteDriver) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) || os.IsTimeout(err) {
			return ErrTimeout
		}
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusGatewayTimeout:
		return ErrTimeout
	case resp.StatusCode >= 400:
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("sidecar %s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("sidecar %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
