package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"petintake/config"
	"petintake/internal/ingestion"
	"petintake/internal/upload"
	"petintake/internal/wizard"

	logger "github.com/Bparsons0904/goLogger"
)

const maxResponseBytes = 10 << 20

var (
	_ ingestion.Transport = (*PetAPIService)(nil)
	_ wizard.Pets         = (*PetAPIService)(nil)
	_ wizard.Accounts     = (*PetAPIService)(nil)
)

// APIError is a non-2xx answer from the pet API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("pet api returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("pet api returned %d", e.Status)
}

func (e *APIError) StatusCode() int {
	return e.Status
}

func (e *APIError) ServerMessage() string {
	return e.Message
}

// PetAPIService is the HTTP client for the remote pet API. It implements ingestion.Transport,
// wizard.Pets and wizard.Accounts.
type PetAPIService struct {
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

func NewPetAPIService(cfg config.Config) *PetAPIService {
	return NewPetAPIClient(cfg.PetAPIBaseURL, cfg.PetAPITimeout())
}

func NewPetAPIClient(baseURL string, timeout time.Duration) *PetAPIService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &PetAPIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.New("PetAPIService"),
	}
}

func (s *PetAPIService) CreateFromDocuments(
	ctx context.Context,
	token string,
	files []upload.File,
) (json.RawMessage, error) {
	return s.doMultipart(ctx, "/pets/from-documents", token, files)
}

func (s *PetAPIService) ListArtifacts(ctx context.Context, token string, petID string) (json.RawMessage, error) {
	return s.do(ctx, http.MethodGet, petPath(petID, "artifacts"), token, nil, "")
}

func (s *PetAPIService) UploadMany(ctx context.Context, token string, petID string, files []upload.File) error {
	_, err := s.doMultipart(ctx, petPath(petID, "documents"), token, files)
	return err
}

func (s *PetAPIService) ListDocuments(ctx context.Context, token string, petID string) (json.RawMessage, error) {
	return s.do(ctx, http.MethodGet, petPath(petID, "documents"), token, nil, "")
}

func (s *PetAPIService) GetPet(ctx context.Context, token string, petID string) (json.RawMessage, error) {
	return s.do(ctx, http.MethodGet, petPath(petID, ""), token, nil, "")
}

func (s *PetAPIService) CreatePet(ctx context.Context, token string, draft wizard.PetDraft) (string, error) {
	log := s.log.TraceFromContext(ctx).Function("CreatePet")

	raw, err := s.doJSON(ctx, http.MethodPost, "/pets", token, draft)
	if err != nil {
		return "", err
	}

	created, err := ingestion.NormalizeToOne[struct {
		ID ingestion.FlexibleID `json:"id"`
	}](raw)
	if err != nil {
		return "", log.Err("failed to read created pet", err)
	}
	if created.ID == "" {
		return "", log.Err("created pet has no id", ingestion.ErrUnexpectedResponse)
	}

	return created.ID.String(), nil
}

func (s *PetAPIService) Register(ctx context.Context, registration wizard.Registration) error {
	_, err := s.doJSON(ctx, http.MethodPost, "/auth/register", "", registration)
	return err
}

// VerifyCode exchanges an emailed one-time code for a bearer token.
func (s *PetAPIService) VerifyCode(ctx context.Context, email string, code string) (string, error) {
	log := s.log.TraceFromContext(ctx).Function("VerifyCode")

	raw, err := s.doJSON(ctx, http.MethodPost, "/auth/verify", "", map[string]string{
		"email": email,
		"code":  code,
	})
	if err != nil {
		return "", err
	}

	verified, err := ingestion.NormalizeToOne[struct {
		Token       string `json:"token"`
		AccessToken string `json:"accessToken"`
	}](raw)
	if err != nil {
		return "", log.Err("failed to read verification response", err)
	}

	token := verified.Token
	if token == "" {
		token = verified.AccessToken
	}
	if token == "" {
		return "", log.Err("verification response has no token", ingestion.ErrUnexpectedResponse)
	}
	return token, nil
}

func (s *PetAPIService) ResendCode(ctx context.Context, email string) error {
	_, err := s.doJSON(ctx, http.MethodPost, "/auth/resend", "", map[string]string{"email": email})
	return err
}

func (s *PetAPIService) doJSON(
	ctx context.Context,
	method string,
	path string,
	token string,
	payload any,
) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return s.do(ctx, method, path, token, bytes.NewReader(body), "application/json")
}

func (s *PetAPIService) doMultipart(
	ctx context.Context,
	path string,
	token string,
	files []upload.File,
) (json.RawMessage, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(file.Name)))
		if file.Type != "" {
			header.Set("Content-Type", file.Type)
		} else {
			header.Set("Content-Type", "application/octet-stream")
		}

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("failed to create multipart part: %w", err)
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, fmt.Errorf("failed to write multipart part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	return s.do(ctx, http.MethodPost, path, token, &body, writer.FormDataContentType())
}

// do sends one request. Transport failures wrap ingestion.ErrNoResponse and non-2xx answers
// come back as *APIError.
func (s *PetAPIService) do(
	ctx context.Context,
	method string,
	path string,
	token string,
	body io.Reader,
	contentType string,
) (json.RawMessage, error) {
	log := s.log.TraceFromContext(ctx).Function("do")

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn("pet api unreachable", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %v", ingestion.ErrNoResponse, method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Info("failed to close response body", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s %s: %v", ingestion.ErrNoResponse, method, path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode, Message: messageFrom(data)}
		log.Debug("pet api error", "method", method, "path", path, "status", resp.StatusCode)
		return nil, apiErr
	}

	return json.RawMessage(data), nil
}

// messageFrom pulls a human readable message out of an error body. It understands
// {"message": "..."}, {"error": "..."} and {"error": {"message": "..."}}.
func messageFrom(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	if len(payload.Error) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(payload.Error, &text); err == nil {
		return text
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}

func petPath(petID string, resource string) string {
	path := "/pets/" + url.PathEscape(petID)
	if resource != "" {
		path += "/" + resource
	}
	return path
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
