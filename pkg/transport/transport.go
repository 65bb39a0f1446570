// Package transport implements the remote transport collaborator
// over HTTP. One request description maps to one HTTP call against an
// entity API; the response headers carry the validator, the total
// count, the payload origin and the server declared root set.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/diwise/entity-store/pkg/store/remote"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	HeaderTotalCount string = "X-Total-Count"
	HeaderOrigin     string = "X-Served-From"
	HeaderRootSet    string = "X-Root-Set"
	HeaderTenant     string = "X-Tenant"
)

func Debug(enabled string) func(*httpTransport) {
	return func(t *httpTransport) {
		t.debug = (enabled == "true")
	}
}

func Tenant(tenant string) func(*httpTransport) {
	return func(t *httpTransport) {
		t.tenant = tenant
	}
}

func New(baseURL string, options ...func(*httpTransport)) remote.Transport {
	t := &httpTransport{
		baseURL: baseURL,
		debug:   false,
	}

	for _, option := range options {
		option(t)
	}

	return t
}

type httpTransport struct {
	baseURL string
	tenant  string
	debug   bool
}

func (t *httpTransport) Send(ctx context.Context, req remote.Request) (*remote.Response, error) {
	method, endpoint, body, err := t.describe(req)
	if err != nil {
		return nil, err
	}

	response, responseBody, err := t.call(ctx, method, endpoint, body, req.IfNoneMatch)
	if err != nil {
		return nil, err
	}

	if response.StatusCode >= http.StatusBadRequest {
		return nil, &store.APIError{Status: response.StatusCode, Payload: responseBody}
	}

	result := &remote.Response{
		NotModified: response.StatusCode == http.StatusNotModified,
		Body:        responseBody,
		ETag:        response.Header.Get("ETag"),
		Origin:      store.OriginServer,
	}

	if response.Header.Get(HeaderOrigin) == "cache" {
		result.Origin = store.OriginCache
	}

	if totalCount, ok := extractTotalCount(response); ok {
		result.TotalCount = totalCount
	}

	if roots := response.Header.Get(HeaderRootSet); roots != "" {
		err = json.Unmarshal([]byte(roots), &result.Roots)
		if err != nil {
			return nil, fmt.Errorf("failed to parse root set header: %w", err)
		}
	}

	return result, nil
}

// describe maps a request description to method, endpoint and body.
func (t *httpTransport) describe(req remote.Request) (string, string, io.Reader, error) {
	collection := t.baseURL + "/v1/entities/" + url.PathEscape(req.EntityType)

	switch req.Operation {
	case "get":
		if len(req.IDs) != 1 {
			return "", "", nil, fmt.Errorf("get requires exactly one identifier")
		}
		return http.MethodGet, collection + "/" + url.PathEscape(req.IDs[0]), nil, nil

	case "search":
		return http.MethodGet, collection + query(req), nil, nil

	case "set":
		return http.MethodPost, collection, bytes.NewBuffer(req.Payload), nil

	case "remove":
		return http.MethodDelete, collection + idParams(req.IDs), nil, nil

	case "removeAll":
		return http.MethodDelete, collection + query(req), nil, nil
	}

	return "", "", nil, fmt.Errorf("unknown operation %s", req.Operation)
}

func query(req remote.Request) string {
	if req.Query == "" {
		return ""
	}
	return "?q=" + url.QueryEscape(req.Query)
}

func idParams(ids []string) string {
	params := url.Values{}
	for _, id := range ids {
		params.Add("id", id)
	}
	return "?" + params.Encode()
}

func (t *httpTransport) call(ctx context.Context, method, endpoint string, body io.Reader, ifNoneMatch string) (*http.Response, []byte, error) {
	httpClient := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}

	if t.tenant != "" {
		req.Header.Set(HeaderTenant, t.tenant)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if t.debug && resp.StatusCode >= http.StatusBadRequest {
		reqbytes, _ := httputil.DumpRequest(req, false)
		respbytes, _ := httputil.DumpResponse(resp, false)

		log := logging.GetFromContext(ctx)
		log.Error("request failed", "request", string(reqbytes), "response", string(respbytes))
	}

	return resp, respBody, nil
}

func extractTotalCount(r *http.Response) (int64, bool) {
	val := r.Header.Get(HeaderTotalCount)
	if val == "" {
		return -1, false
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return -1, false
	}

	return count, true
}

// RootSetHeader encodes a root identifier set for the response
// header, the inverse of what Send parses.
func RootSetHeader(roots []entities.Identifier) (string, error) {
	encoded, err := json.Marshal(roots)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
