package launchpad

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	retry "github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	// DefaultServiceRoot is the production Launchpad API root at the devel
	// version, which is the only version exposing charm recipes.
	DefaultServiceRoot = "https://api.launchpad.net/devel/"

	// DefaultWebRoot is the interactive Launchpad site used for token
	// authorization pages.
	DefaultWebRoot = "https://launchpad.net/"

	consumerKeyConstant              = "charm-recipe-tool"
	oauthSignatureMethodConstant     = "PLAINTEXT"
	oauthVersionConstant             = "1.0"
	authorizationHeaderNameConstant  = "Authorization"
	contentTypeHeaderNameConstant    = "Content-Type"
	acceptHeaderNameConstant         = "Accept"
	jsonContentTypeConstant          = "application/json"
	formContentTypeConstant          = "application/x-www-form-urlencoded"
	wsOperationParameterConstant     = "ws.op"
	transientRetryAttemptsConstant   = 3
	transientRetryBackoffConstant    = 2 * time.Second
	apiErrorBodyExcerptLimitConstant = 300
	requestCreationTemplateConstant  = "unable to create request: %w"
	requestExecutionTemplateConstant = "request failed: %w"
	responseBodyReadTemplateConstant = "unable to read response body: %w"
	logMessageAPIRequestConstant     = "launchpad api request"
	logFieldMethodConstant           = "method"
	logFieldURLConstant              = "url"
	logFieldStatusConstant           = "status"
)

// Client talks to the Launchpad web service.
type Client struct {
	httpClient  *http.Client
	serviceRoot string
	webRoot     string
	credentials *Credentials
	logger      *zap.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *Client) { client.httpClient = httpClient }
}

// WithServiceRoot overrides the API service root, for tests and staging.
func WithServiceRoot(serviceRoot string) ClientOption {
	return func(client *Client) { client.serviceRoot = ensureTrailingSlash(serviceRoot) }
}

// WithWebRoot overrides the interactive site root.
func WithWebRoot(webRoot string) ClientOption {
	return func(client *Client) { client.webRoot = ensureTrailingSlash(webRoot) }
}

// WithCredentials attaches OAuth credentials so mutating operations are
// signed as the authorized user.
func WithCredentials(credentials *Credentials) ClientOption {
	return func(client *Client) { client.credentials = credentials }
}

// WithLogger attaches a structured logger for request diagnostics.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(client *Client) { client.logger = logger }
}

// NewClient constructs a Launchpad client. Without credentials the client is
// anonymous and only read operations will succeed.
func NewClient(options ...ClientOption) *Client {
	client := &Client{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		serviceRoot: DefaultServiceRoot,
		webRoot:     DefaultWebRoot,
		logger:      zap.NewNop(),
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// Anonymous reports whether the client has no stored credentials.
func (client *Client) Anonymous() bool {
	return client.credentials == nil
}

// ServiceRoot returns the configured API root.
func (client *Client) ServiceRoot() string {
	return client.serviceRoot
}

func ensureTrailingSlash(value string) string {
	if strings.HasSuffix(value, "/") {
		return value
	}
	return value + "/"
}

func (client *Client) authorizationHeader() string {
	oauthToken := ""
	tokenSecret := ""
	consumerKey := consumerKeyConstant
	if client.credentials != nil {
		oauthToken = client.credentials.Token
		tokenSecret = client.credentials.TokenSecret
		if len(client.credentials.ConsumerKey) > 0 {
			consumerKey = client.credentials.ConsumerKey
		}
	}

	headerParameters := []struct {
		parameterName  string
		parameterValue string
	}{
		{"realm", client.serviceRoot},
		{"oauth_consumer_key", consumerKey},
		{"oauth_signature_method", oauthSignatureMethodConstant},
		{"oauth_token", oauthToken},
		{"oauth_signature", "&" + tokenSecret},
		{"oauth_timestamp", strconv.FormatInt(time.Now().Unix(), 10)},
		{"oauth_nonce", uuid.NewString()},
		{"oauth_version", oauthVersionConstant},
	}

	renderedParameters := make([]string, 0, len(headerParameters))
	for _, headerParameter := range headerParameters {
		renderedParameters = append(renderedParameters, fmt.Sprintf("%s=%q", headerParameter.parameterName, url.QueryEscape(headerParameter.parameterValue)))
	}
	return "OAuth " + strings.Join(renderedParameters, ", ")
}

func (client *Client) do(executionContext context.Context, method string, requestURL string, contentType string, body []byte) ([]byte, error) {
	var responseBody []byte

	retryBackoff := retry.WithMaxRetries(transientRetryAttemptsConstant, retry.NewConstant(transientRetryBackoffConstant))
	retryError := retry.Do(executionContext, retryBackoff, func(retryContext context.Context) error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		request, requestError := http.NewRequestWithContext(retryContext, method, requestURL, bodyReader)
		if requestError != nil {
			return fmt.Errorf(requestCreationTemplateConstant, requestError)
		}

		request.Header.Set(acceptHeaderNameConstant, jsonContentTypeConstant)
		request.Header.Set(authorizationHeaderNameConstant, client.authorizationHeader())
		if len(contentType) > 0 {
			request.Header.Set(contentTypeHeaderNameConstant, contentType)
		}

		response, executionError := client.httpClient.Do(request)
		if executionError != nil {
			return retry.RetryableError(fmt.Errorf(requestExecutionTemplateConstant, executionError))
		}
		defer response.Body.Close()

		client.logger.Debug(
			logMessageAPIRequestConstant,
			zap.String(logFieldMethodConstant, method),
			zap.String(logFieldURLConstant, requestURL),
			zap.Int(logFieldStatusConstant, response.StatusCode),
		)

		payload, readError := io.ReadAll(response.Body)
		if readError != nil {
			return fmt.Errorf(responseBodyReadTemplateConstant, readError)
		}

		if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
			responseBody = payload
			return nil
		}

		apiError := APIError{
			StatusCode:  response.StatusCode,
			RequestURL:  requestURL,
			BodyExcerpt: excerpt(payload),
		}
		if response.StatusCode == http.StatusBadGateway ||
			response.StatusCode == http.StatusServiceUnavailable ||
			response.StatusCode == http.StatusGatewayTimeout {
			return retry.RetryableError(apiError)
		}
		return apiError
	})
	if retryError != nil {
		return nil, retryError
	}
	return responseBody, nil
}

func excerpt(payload []byte) string {
	trimmedPayload := strings.TrimSpace(string(payload))
	if len(trimmedPayload) > apiErrorBodyExcerptLimitConstant {
		return trimmedPayload[:apiErrorBodyExcerptLimitConstant]
	}
	return trimmedPayload
}

func (client *Client) getJSON(executionContext context.Context, requestURL string, queryParameters url.Values, target any) error {
	resolvedURL := requestURL
	if len(queryParameters) > 0 {
		separator := "?"
		if strings.Contains(requestURL, "?") {
			separator = "&"
		}
		resolvedURL = requestURL + separator + queryParameters.Encode()
	}

	payload, requestError := client.do(executionContext, http.MethodGet, resolvedURL, "", nil)
	if requestError != nil {
		return requestError
	}
	if target == nil {
		return nil
	}
	return json.Unmarshal(payload, target)
}

// postForm submits a named web-service operation as form data. Structured
// parameter values (lists, maps) must already be JSON-encoded, which is how
// the web service expects them.
func (client *Client) postForm(executionContext context.Context, requestURL string, formValues url.Values) ([]byte, error) {
	return client.do(executionContext, http.MethodPost, requestURL, formContentTypeConstant, []byte(formValues.Encode()))
}

// patchEntry applies a partial update to an entry resource.
func (client *Client) patchEntry(executionContext context.Context, entryLink string, updatedFields map[string]any) error {
	payload, encodeError := json.Marshal(updatedFields)
	if encodeError != nil {
		return encodeError
	}
	_, requestError := client.do(executionContext, http.MethodPatch, entryLink, jsonContentTypeConstant, payload)
	return requestError
}

// deleteEntry removes an entry resource.
func (client *Client) deleteEntry(executionContext context.Context, entryLink string) error {
	_, requestError := client.do(executionContext, http.MethodDelete, entryLink, "", nil)
	return requestError
}

// collectionPage is one page of a Launchpad paged collection.
type collectionPage struct {
	Entries            json.RawMessage `json:"entries"`
	TotalSize          int             `json:"total_size"`
	NextCollectionLink string          `json:"next_collection_link"`
}

// collectPages walks a paged collection, invoking consumePage with the raw
// entries of every page until exhaustion.
func (client *Client) collectPages(executionContext context.Context, collectionURL string, queryParameters url.Values, consumePage func(rawEntries json.RawMessage) error) error {
	pageURL := collectionURL
	pageParameters := queryParameters
	for len(pageURL) > 0 {
		var page collectionPage
		if pageError := client.getJSON(executionContext, pageURL, pageParameters, &page); pageError != nil {
			return pageError
		}
		if len(page.Entries) > 0 {
			if consumeError := consumePage(page.Entries); consumeError != nil {
				return consumeError
			}
		}
		pageURL = page.NextCollectionLink
		pageParameters = nil
	}
	return nil
}
