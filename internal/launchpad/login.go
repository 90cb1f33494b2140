package launchpad

import (
	"context"
	"errors"
	"net/url"
	"time"

	retry "github.com/sethvargo/go-retry"
)

const (
	requestTokenPathConstant             = "+request-token"
	accessTokenPathConstant              = "+access-token"
	authorizeTokenPathConstant           = "+authorize-token"
	oauthTokenFormFieldConstant          = "oauth_token"
	oauthSecretFormFieldConstant         = "oauth_token_secret"
	allowPermissionParameterConstant     = "allow_permission"
	desktopIntegrationPermissionConstant = "DESKTOP_INTEGRATION"
	accessTokenPollIntervalConstant      = 5 * time.Second
	accessTokenPollAttemptsConstant      = 60

	operationNameRequestToken  = OperationName("RequestToken")
	operationNameExchangeToken = OperationName("ExchangeAccessToken")
)

// RequestToken is an unauthorized OAuth request token awaiting user review.
type RequestToken struct {
	Token            string
	TokenSecret      string
	AuthorizationURL string
}

// ObtainRequestToken starts the interactive login by asking Launchpad for a
// request token. The returned AuthorizationURL must be opened by the user to
// approve the token.
func (client *Client) ObtainRequestToken(executionContext context.Context) (*RequestToken, error) {
	formValues := url.Values{}
	formValues.Set("oauth_consumer_key", consumerKeyConstant)
	formValues.Set("oauth_signature_method", oauthSignatureMethodConstant)
	formValues.Set("oauth_signature", "&")

	payload, requestError := client.postForm(executionContext, client.webRoot+requestTokenPathConstant, formValues)
	if requestError != nil {
		return nil, OperationError{Operation: operationNameRequestToken, Cause: requestError}
	}

	tokenValues, parseError := url.ParseQuery(string(payload))
	if parseError != nil {
		return nil, ResponseDecodingError{Operation: operationNameRequestToken, Cause: parseError}
	}

	authorizationParameters := url.Values{}
	authorizationParameters.Set(oauthTokenFormFieldConstant, tokenValues.Get(oauthTokenFormFieldConstant))
	authorizationParameters.Set(allowPermissionParameterConstant, desktopIntegrationPermissionConstant)

	return &RequestToken{
		Token:            tokenValues.Get(oauthTokenFormFieldConstant),
		TokenSecret:      tokenValues.Get(oauthSecretFormFieldConstant),
		AuthorizationURL: client.webRoot + authorizeTokenPathConstant + "?" + authorizationParameters.Encode(),
	}, nil
}

// ExchangeAccessToken polls Launchpad for the access token granted to a
// reviewed request token. Launchpad answers 403 until the user has approved
// the token in the browser, so the exchange retries on a fixed interval
// until approval or context cancellation.
func (client *Client) ExchangeAccessToken(executionContext context.Context, requestToken *RequestToken) (*Credentials, error) {
	formValues := url.Values{}
	formValues.Set("oauth_consumer_key", consumerKeyConstant)
	formValues.Set("oauth_signature_method", oauthSignatureMethodConstant)
	formValues.Set(oauthTokenFormFieldConstant, requestToken.Token)
	formValues.Set("oauth_signature", "&"+requestToken.TokenSecret)

	var credentials *Credentials
	pollBackoff := retry.WithMaxRetries(accessTokenPollAttemptsConstant, retry.NewConstant(accessTokenPollIntervalConstant))
	pollError := retry.Do(executionContext, pollBackoff, func(pollContext context.Context) error {
		payload, requestError := client.postForm(pollContext, client.webRoot+accessTokenPathConstant, formValues)
		if requestError != nil {
			var apiError APIError
			if errors.As(requestError, &apiError) && apiError.StatusCode == 403 {
				return retry.RetryableError(ErrAuthorizationPending)
			}
			return OperationError{Operation: operationNameExchangeToken, Cause: requestError}
		}

		tokenValues, parseError := url.ParseQuery(string(payload))
		if parseError != nil {
			return ResponseDecodingError{Operation: operationNameExchangeToken, Cause: parseError}
		}

		credentials = &Credentials{
			ConsumerKey: consumerKeyConstant,
			Token:       tokenValues.Get(oauthTokenFormFieldConstant),
			TokenSecret: tokenValues.Get(oauthSecretFormFieldConstant),
		}
		return nil
	})
	if pollError != nil {
		return nil, pollError
	}
	return credentials, nil
}
