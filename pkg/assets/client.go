// Package assets integrates with JIRA Assets: a REST client covering the
// cloud and datacenter dialects, attribute flattening, snapshot
// reconciliation against host projects, and the per-tenant sync
// configuration and history.
package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/opencomply/comply-server/pkg/apierror"
)

// Deployment selects the REST dialect of the JIRA Assets instance.
type Deployment string

const (
	// DeploymentCloud uses the workspace-scoped gateway with AQL query
	// bodies and paginated {values:[...]} envelopes.
	DeploymentCloud Deployment = "cloud"
	// DeploymentDatacenter uses the Insight REST API with IQL query strings
	// and {objectEntries:[...]} envelopes.
	DeploymentDatacenter Deployment = "datacenter"
)

// Schema is an object schema visible to the configured credentials.
type Schema struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ObjectType is an object type within a schema.
type ObjectType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AttributeDef is an attribute definition of an object type. The cloud bulk
// query endpoint references attributes by id only, so this table is fetched
// once per object type and threaded through the transformer.
type AttributeDef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AttributeValue is one raw value of an object attribute.
type AttributeValue struct {
	Value        string `json:"value"`
	DisplayValue string `json:"displayValue"`
}

// ObjectAttribute is one attribute of a fetched object. TypeInfo is the
// embedded attribute definition when the dialect supplies one; the cloud
// bulk-query endpoint omits it and returns ids only.
type ObjectAttribute struct {
	AttributeID string           `json:"objectTypeAttributeId"`
	TypeInfo    *AttributeDef    `json:"objectTypeAttribute,omitempty"`
	Values      []AttributeValue `json:"objectAttributeValues"`
}

// Object is one external asset object.
type Object struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	ObjectKey  string            `json:"objectKey"`
	Updated    time.Time         `json:"updated"`
	Attributes []ObjectAttribute `json:"attributes"`
}

// AssetsAPI is the operation set the reconciler needs from a JIRA Assets
// instance, independent of dialect.
type AssetsAPI interface {
	ListSchemas(ctx context.Context) ([]Schema, error)
	ListObjectTypes(ctx context.Context, schemaID string) ([]ObjectType, error)
	ListAttributes(ctx context.Context, objectTypeID string) ([]AttributeDef, error)
	ListObjects(ctx context.Context, objectTypeID string, maxResults int) ([]Object, error)
	GetObject(ctx context.Context, id string) (*Object, error)
	TestConnection(ctx context.Context) error
}

// ClientConfig holds the connection settings for one tenant's instance.
type ClientConfig struct {
	BaseURL     string
	WorkspaceID string
	Email       string
	APIToken    string
	Deployment  Deployment
}

// Client implements AssetsAPI over HTTP for both dialects. It performs no
// semantic interpretation of attribute values; that is the transformer's
// job. No retries: a failed call surfaces its status and body text.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient creates a Client with a 30 second request timeout.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// envelope is the single documented response wrapper for list endpoints.
// The cloud dialect answers with values, the datacenter dialect with
// objectEntries; unwrap validates that the expected key is present instead
// of shape-sniffing.
type envelope struct {
	Values        []json.RawMessage `json:"values"`
	ObjectEntries []json.RawMessage `json:"objectEntries"`
	StartAt       int               `json:"startAt"`
	MaxResults    int               `json:"maxResults"`
	Total         int               `json:"total"`
	IsLast        bool              `json:"isLast"`
}

// unwrap returns the entry list for the given dialect, erroring when the
// dialect's key is absent.
func (e *envelope) unwrap(d Deployment) ([]json.RawMessage, error) {
	switch d {
	case DeploymentCloud:
		if e.Values == nil {
			return nil, fmt.Errorf("cloud response envelope is missing the values key")
		}
		return e.Values, nil
	case DeploymentDatacenter:
		if e.ObjectEntries == nil {
			return nil, fmt.Errorf("datacenter response envelope is missing the objectEntries key")
		}
		return e.ObjectEntries, nil
	default:
		return nil, fmt.Errorf("unknown deployment type %q", d)
	}
}

// apiURL joins a dialect-specific path onto the base URL.
func (c *Client) apiURL(path string) string {
	if c.cfg.Deployment == DeploymentCloud {
		return fmt.Sprintf("%s/gateway/api/jsm/assets/workspace/%s/v1%s", c.cfg.BaseURL, c.cfg.WorkspaceID, path)
	}
	return c.cfg.BaseURL + "/rest/insight/1.0" + path
}

// doJSON performs one request and decodes the response into out. Non-2xx
// responses become ExternalAPIError carrying status and body text.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Deployment == DeploymentCloud {
		req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return &apierror.ExternalAPIError{StatusCode: resp.StatusCode, Body: string(text)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ListSchemas returns all object schemas.
func (c *Client) ListSchemas(ctx context.Context) ([]Schema, error) {
	if c.cfg.Deployment == DeploymentCloud {
		var env envelope
		if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/objectschema/list"), nil, &env); err != nil {
			return nil, err
		}
		return decodeEach[Schema](env.Values)
	}

	// The datacenter schema list is the one endpoint with its own wrapper.
	var resp struct {
		ObjectSchemas []Schema `json:"objectschemas"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/objectschema/list"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.ObjectSchemas, nil
}

// ListObjectTypes returns the object types of a schema.
func (c *Client) ListObjectTypes(ctx context.Context, schemaID string) ([]ObjectType, error) {
	if c.cfg.Deployment == DeploymentCloud {
		var env envelope
		url := c.apiURL("/objectschema/" + schemaID + "/objecttypes")
		if err := c.doJSON(ctx, http.MethodGet, url, nil, &env); err != nil {
			return nil, err
		}
		return decodeEach[ObjectType](env.Values)
	}

	var types []ObjectType
	url := c.apiURL("/objectschema/" + schemaID + "/objecttypes/flat")
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

// ListAttributes returns the attribute definitions of an object type.
func (c *Client) ListAttributes(ctx context.Context, objectTypeID string) ([]AttributeDef, error) {
	var defs []AttributeDef
	url := c.apiURL("/objecttype/" + objectTypeID + "/attributes")
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// ListObjects fetches all objects of a type up to maxResults. The cloud
// dialect posts an AQL body and follows {values:[...]} pages until isLast;
// the datacenter dialect issues one IQL query string request.
func (c *Client) ListObjects(ctx context.Context, objectTypeID string, maxResults int) ([]Object, error) {
	if maxResults <= 0 {
		maxResults = 1000
	}

	if c.cfg.Deployment == DeploymentCloud {
		var objects []Object
		pageSize := 100
		for startAt := 0; ; startAt += pageSize {
			body := map[string]any{
				"qlQuery":    fmt.Sprintf("objectTypeId = %s", objectTypeID),
				"startAt":    startAt,
				"maxResults": pageSize,
			}
			var env envelope
			if err := c.doJSON(ctx, http.MethodPost, c.apiURL("/object/aql"), body, &env); err != nil {
				return nil, err
			}
			raw, err := env.unwrap(DeploymentCloud)
			if err != nil {
				return nil, err
			}
			page, err := decodeEach[Object](raw)
			if err != nil {
				return nil, err
			}
			objects = append(objects, page...)
			if env.IsLast || len(page) == 0 || len(objects) >= maxResults {
				break
			}
		}
		if len(objects) > maxResults {
			objects = objects[:maxResults]
		}
		return objects, nil
	}

	query := url.Values{}
	query.Set("iql", fmt.Sprintf("objectTypeId = %s", objectTypeID))
	query.Set("resultPerPage", fmt.Sprintf("%d", maxResults))
	var env envelope
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/iql/objects")+"?"+query.Encode(), nil, &env); err != nil {
		return nil, err
	}
	raw, err := env.unwrap(DeploymentDatacenter)
	if err != nil {
		return nil, err
	}
	return decodeEach[Object](raw)
}

// GetObject fetches one object by id.
func (c *Client) GetObject(ctx context.Context, id string) (*Object, error) {
	var obj Object
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/object/"+id), nil, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// TestConnection probes the instance with a schema list call. A failure
// surfaces the underlying HTTP error text.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.ListSchemas(ctx)
	return err
}

// decodeEach decodes every raw envelope entry into T.
func decodeEach[T any](raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, fmt.Errorf("decode envelope entry: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}
