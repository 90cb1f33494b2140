package authorize

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-recipe-tool/internal/groupconfig"
	"github.com/openstack-charmers/charm-recipe-tool/internal/launchpad"
)

const recipeAuthorizePathConstant = "/+authorize"

// LaunchpadAPI is the slice of the Launchpad web service the authorization
// service depends on.
type LaunchpadAPI interface {
	Person(executionContext context.Context, personName string) (*launchpad.Person, error)
	Project(executionContext context.Context, projectName string) (*launchpad.Project, error)
	CharmRecipes(executionContext context.Context, owner *launchpad.Person, project *launchpad.Project) ([]launchpad.CharmRecipe, error)
}

// LoginAPI is the OAuth token flow of the Launchpad web service.
type LoginAPI interface {
	ObtainRequestToken(executionContext context.Context) (*launchpad.RequestToken, error)
	ExchangeAccessToken(executionContext context.Context, requestToken *launchpad.RequestToken) (*launchpad.Credentials, error)
}

// BrowserOpener opens a URL in the user's web browser.
type BrowserOpener func(pageURL string) error

// Service drives the browser-based authorization flows.
type Service struct {
	launchpadAPI LaunchpadAPI
	browser      BrowserOpener
	logger       *zap.Logger
}

// NewService constructs an authorization service.
func NewService(launchpadAPI LaunchpadAPI, browser BrowserOpener, logger *zap.Logger) *Service {
	return &Service{launchpadAPI: launchpadAPI, browser: browser, logger: logger}
}

// AuthorizeOptions controls which recipes are sent to the browser.
type AuthorizeOptions struct {
	Force bool
}

// AuthorizationOutcome records what happened to one recipe.
type AuthorizationOutcome struct {
	Recipe     string `json:"recipe"`
	WebLink    string `json:"web_link"`
	Authorized bool   `json:"authorized"`
	Skipped    bool   `json:"skipped"`
	Reason     string `json:"reason,omitempty"`
}

// AuthorizeRecipes opens the Charmhub authorization page of every recipe of
// the project that cannot upload to the store yet. Each page completes the
// exchange in the browser, so the flow is sequential. With Force set every
// recipe is re-authorized.
func (service *Service) AuthorizeRecipes(executionContext context.Context, configuration *groupconfig.Project, options AuthorizeOptions) ([]AuthorizationOutcome, error) {
	team, teamError := service.launchpadAPI.Person(executionContext, configuration.Team)
	if teamError != nil {
		return nil, fmt.Errorf("resolving team %s: %w", configuration.Team, teamError)
	}
	launchpadProject, projectError := service.launchpadAPI.Project(executionContext, configuration.LaunchpadProject)
	if projectError != nil {
		return nil, fmt.Errorf("resolving project %s: %w", configuration.LaunchpadProject, projectError)
	}
	recipes, recipesError := service.launchpadAPI.CharmRecipes(executionContext, team, launchpadProject)
	if recipesError != nil {
		return nil, fmt.Errorf("listing recipes for %s: %w", configuration.LaunchpadProject, recipesError)
	}
	sort.Slice(recipes, func(leftIndex, rightIndex int) bool {
		return recipes[leftIndex].Name < recipes[rightIndex].Name
	})

	outcomes := make([]AuthorizationOutcome, 0, len(recipes))
	for _, recipe := range recipes {
		outcome := AuthorizationOutcome{Recipe: recipe.Name, WebLink: recipe.WebLink}
		if recipe.CanUploadToStore && !options.Force {
			outcome.Skipped = true
			outcome.Reason = "already authorized"
			outcomes = append(outcomes, outcome)
			continue
		}

		authorizationURL := recipe.WebLink + recipeAuthorizePathConstant
		service.logger.Info("opening recipe authorization page",
			zap.String("recipe", recipe.Name),
			zap.String("url", authorizationURL))
		if browserError := service.browser(authorizationURL); browserError != nil {
			outcome.Reason = browserError.Error()
			outcomes = append(outcomes, outcome)
			return outcomes, fmt.Errorf("opening browser for %s: %w", recipe.Name, browserError)
		}
		outcome.Authorized = true
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// Login runs the interactive OAuth flow and persists the resulting
// credentials. The request token is opened in the browser for review and the
// access token exchange polls until the user approves it.
func (service *Service) Login(executionContext context.Context, loginAPI LoginAPI, credentialStore launchpad.CredentialStore) error {
	requestToken, tokenError := loginAPI.ObtainRequestToken(executionContext)
	if tokenError != nil {
		return fmt.Errorf("obtaining request token: %w", tokenError)
	}

	service.logger.Info("opening launchpad authorization page", zap.String("url", requestToken.AuthorizationURL))
	if browserError := service.browser(requestToken.AuthorizationURL); browserError != nil {
		service.logger.Warn("could not open a browser, visit the page manually",
			zap.String("url", requestToken.AuthorizationURL),
			zap.Error(browserError))
	}

	credentials, exchangeError := loginAPI.ExchangeAccessToken(executionContext, requestToken)
	if exchangeError != nil {
		return fmt.Errorf("exchanging access token: %w", exchangeError)
	}

	if storeError := credentialStore.Store(credentials); storeError != nil {
		return fmt.Errorf("storing credentials: %w", storeError)
	}
	service.logger.Info("launchpad credentials stored")
	return nil
}
