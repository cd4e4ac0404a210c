// smoketest exercises a running codexagent instance: it checks /health, then
// posts a fix request and prints the JSON response. Exits non-zero on any
// failure, so it can gate deployments.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codexagent/codexagent/pkg/log"
)

// fixTimeout covers the whole pipeline: clone, a long opencode run, push,
// and PR creation.
const fixTimeout = 11 * time.Minute

const healthTimeout = 5 * time.Second

// mimeTypes maps image extensions for the multipart part header.
var mimeTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		baseURL   string
		repoURL   string
		prompt    string
		imagePath string
		debug     bool
	)

	rootCmd := &cobra.Command{
		Use:          "smoketest",
		Short:        "Send a test bug-fix request to a codexagent server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(debug)
			return runSmokeTest(logger, strings.TrimSuffix(baseURL, "/"), repoURL, prompt, imagePath)
		},
	}

	rootCmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8000", "Base URL of the running codexagent server")
	rootCmd.Flags().StringVar(&repoURL, "repo", "", "HTTPS GitHub repository URL, e.g. https://github.com/owner/repo")
	rootCmd.Flags().StringVar(&prompt, "prompt", "", "Bug description to send to the agent")
	rootCmd.Flags().StringVar(&imagePath, "image", "", "Path to a local screenshot (PNG/JPEG) to attach (optional)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug output")
	_ = rootCmd.MarkFlagRequired("repo")
	_ = rootCmd.MarkFlagRequired("prompt")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	return rootCmd
}

func runSmokeTest(logger *log.Logger, baseURL, repoURL, prompt, imagePath string) error {
	logger.Step("Checking health at %s/health", baseURL)
	if err := checkHealth(baseURL); err != nil {
		logger.Error("Health check failed: %v", err)
		logger.Info("Make sure the server is running")
		return err
	}
	logger.Success("Health OK")

	body, contentType, err := buildFixRequest(repoURL, prompt, imagePath, logger)
	if err != nil {
		return err
	}

	logger.Step("POST %s/fix", baseURL)
	logger.Info("repo_url        = %s", repoURL)
	logger.Info("bug_description = %s", prompt)
	if imagePath != "" {
		logger.Info("image           = %s", imagePath)
	}

	client := &http.Client{Timeout: fixTimeout}
	resp, err := client.Post(baseURL+"/fix", contentType, body)
	if err != nil {
		logger.Error("Request failed: %v", err)
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	logger.Info("HTTP %d", resp.StatusCode)
	printJSON(logger, raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Error("Failed with status %d", resp.StatusCode)
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	logger.Success("Success!")
	return nil
}

// checkHealth fails unless GET /health answers 200 within its timeout.
func checkHealth(baseURL string) error {
	client := &http.Client{Timeout: healthTimeout}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

// buildFixRequest assembles the multipart body with the form fields and the
// optional image attachment.
func buildFixRequest(repoURL, prompt, imagePath string, logger *log.Logger) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("repo_url", repoURL); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("bug_description", prompt); err != nil {
		return nil, "", err
	}

	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return nil, "", fmt.Errorf("image file not found: %s", imagePath)
		}

		mime := mimeTypes[strings.ToLower(filepath.Ext(imagePath))]
		if mime == "" {
			mime = "application/octet-stream"
		}
		logger.Info("Attaching image: %s (%s)", imagePath, mime)

		part, err := createImagePart(mw, filepath.Base(imagePath), mime)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// createImagePart adds a file part with an explicit content type; the stock
// CreateFormFile helper hardcodes application/octet-stream.
func createImagePart(mw *multipart.Writer, filename, mime string) (io.Writer, error) {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	header.Set("Content-Type", mime)
	return mw.CreatePart(header)
}

// printJSON pretty-prints the response body, falling back to raw output when
// it is not JSON.
func printJSON(logger *log.Logger, raw []byte) {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		fmt.Println(string(raw))
		return
	}
	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(string(pretty))
}
