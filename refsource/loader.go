package refsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// Settings configures how a source location is fetched.
type Settings struct {
	// Timeout bounds each fetch attempt.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after a transient
	// failure (network error, 429 or 5xx).
	MaxRetries int
	// Backoff is the delay before the first retry. It doubles per retry.
	Backoff time.Duration
	// RetryInterval is how long a failed source is left alone before a
	// lazy lookup fetches it again. Forced refreshes always fetch.
	RetryInterval time.Duration
	// HTTPClient overrides the client used for http and https locations.
	HTTPClient *http.Client
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		Timeout:       5 * time.Second,
		MaxRetries:    1,
		Backoff:       200 * time.Millisecond,
		RetryInterval: 30 * time.Second,
	}
}

type locationKind int

const (
	locationFile locationKind = iota
	locationHTTP
)

// classifyLocation reports how location is read. Plain paths and file://
// URLs are files; http and https URLs are fetched. Anything else is a
// configuration error.
func classifyLocation(location string) (locationKind, string, error) {
	if strings.TrimSpace(location) == "" {
		return 0, "", errors.New("location is empty")
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" {
		return locationFile, location, nil
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return 0, "", fmt.Errorf("url %q has no host", location)
		}
		return locationHTTP, location, nil
	case "file":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return locationFile, path, nil
	default:
		return 0, "", fmt.Errorf("unsupported location scheme %q (supported: http, https, file)", u.Scheme)
	}
}

// fetch reads the document at location.
func fetch(ctx context.Context, kind locationKind, location string, settings Settings) ([]byte, error) {
	if kind == locationFile {
		return os.ReadFile(location)
	}
	return fetchWithRetry(ctx, location, settings)
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := settings.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: settings.Timeout}
	}

	backoff := settings.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= max(settings.MaxRetries, 0); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		data, retry, err := fetchOnce(ctx, client, rawURL, settings.Timeout)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, lastErr
}

// fetchOnce performs one GET. retry reports whether the failure is
// transient.
func fetchOnce(ctx context.Context, client *http.Client, rawURL string, timeout time.Duration) (data []byte, retry bool, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded), err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return nil, resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, err
	}

	data, err = io.ReadAll(resp.Body)
	return data, false, err
}

type specVersion int

const (
	versionUnknown specVersion = iota
	versionSwagger2
	versionOpenAPI30
	versionOpenAPI31
)

// detectSpecVersion sniffs the document version. JSON is valid YAML, so
// one decoder covers both encodings.
func detectSpecVersion(root map[string]any) specVersion {
	if s, ok := root["openapi"].(string); ok {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(s, "3.0"):
			return versionOpenAPI30
		case strings.HasPrefix(s, "3."):
			return versionOpenAPI31
		}
	}
	if s, ok := root["swagger"].(string); ok && strings.HasPrefix(strings.TrimSpace(s), "2.") {
		return versionSwagger2
	}
	return versionUnknown
}

// parseDocument decodes an OpenAPI 3.x or Swagger 2.0 document and
// returns its component schemas with internal references inlined, keyed
// by schema name.
func parseDocument(ctx context.Context, data []byte, logger *slog.Logger) (map[string]json.RawMessage, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if root == nil {
		return nil, errors.New("document is empty")
	}

	var (
		doc *openapi3.T
		err error
	)
	switch detectSpecVersion(root) {
	case versionOpenAPI30:
		loader := openapi3.NewLoader()
		loader.IsExternalRefsAllowed = false
		doc, err = loader.LoadFromData(data)
		if err != nil {
			return nil, fmt.Errorf("load openapi 3.0 document: %w", err)
		}
	case versionSwagger2:
		doc, err = convertV2ToV3(data)
		if err != nil {
			return nil, fmt.Errorf("convert swagger 2.0 document: %w", err)
		}
	case versionOpenAPI31:
		// 3.1 schemas are JSON Schema 2020-12 already and are read as is.
		return componentSchemas(normalizeYAML(root).(map[string]any))
	default:
		return nil, errors.New("missing or unknown version (expected 'openapi: 3.x' or 'swagger: 2.0')")
	}

	if err := doc.Validate(ctx); err != nil {
		logger.Debug("remote document does not validate, continuing", slog.Any("error", err))
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(encoded, &generic); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return componentSchemas(generic)
}

func convertV2ToV3(data []byte) (*openapi3.T, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(normalizeYAML(generic))
	if err != nil {
		return nil, err
	}

	var v2 openapi2.T
	if err := json.Unmarshal(encoded, &v2); err != nil {
		return nil, err
	}
	return openapi2conv.ToV3(&v2)
}

// normalizeYAML converts map[any]any values produced for non-string YAML
// keys into JSON-encodable maps.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalizeYAML(child)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, child := range t {
			m[fmt.Sprint(k)] = normalizeYAML(child)
		}
		return m
	case []any:
		for i, child := range t {
			t[i] = normalizeYAML(child)
		}
		return t
	default:
		return v
	}
}

// componentSchemas dereferences and normalizes every schema under
// components.schemas.
func componentSchemas(root map[string]any) (map[string]json.RawMessage, error) {
	components, _ := root["components"].(map[string]any)
	schemas, _ := components["schemas"].(map[string]any)

	out := make(map[string]json.RawMessage, len(schemas))
	for name := range schemas {
		ptr := "#/components/schemas/" + escapePointer(name)
		resolved := deref(root, schemas[name], []string{ptr})
		normalizeSchema(resolved)

		raw, err := json.Marshal(resolved)
		if err != nil {
			return nil, fmt.Errorf("encode schema %s: %w", name, err)
		}
		out[name] = raw
	}
	return out, nil
}
