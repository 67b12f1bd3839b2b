package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// FolderImage is one conditioning image staged into an engine-side folder.
type FolderImage struct {
	Filename string
	Data     []byte
}

// PrepareFolder stages the given images into a named folder on the engine
// host, replacing any previous contents of that folder.
func (c *Client) PrepareFolder(ctx context.Context, folder string, images []FolderImage) error {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return fmt.Errorf("engine: folder name is required")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("folder", folder); err != nil {
		return fmt.Errorf("engine: write folder field: %w", err)
	}
	for _, img := range images {
		part, err := mw.CreateFormFile("images", img.Filename)
		if err != nil {
			return fmt.Errorf("engine: build prepare form: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return fmt.Errorf("engine: write prepare form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("engine: close prepare form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/prepare", &buf)
	if err != nil {
		return fmt.Errorf("engine: build prepare request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine: prepare request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("engine: prepare status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	c.logger.Debug().Str("folder", folder).Int("images", len(images)).Msg("engine: folder prepared")
	return nil
}

// GenerateInFolder submits a workflow together with a folder reference in a
// single call, for engines exposing the combined convenience endpoint.
func (c *Client) GenerateInFolder(ctx context.Context, folder string, wf any) (string, error) {
	body, err := json.Marshal(generateRequest{Folder: folder, Prompt: wf})
	if err != nil {
		return "", fmt.Errorf("engine: encode generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("engine: build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("engine: generate request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("engine: generate status %d", resp.StatusCode)
	}
	var decoded submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("engine: decode generate response: %w", err)
	}
	return decoded.PromptID, nil
}

// CleanupFolder removes an engine-side reference folder. Callers treat
// failures as best-effort and must not let them mask the original error.
func (c *Client) CleanupFolder(ctx context.Context, folder string) error {
	body, _ := json.Marshal(folderRequest{Folder: folder})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/cleanup", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("engine: build cleanup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine: cleanup request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("engine: cleanup status %d", resp.StatusCode)
	}
	return nil
}
