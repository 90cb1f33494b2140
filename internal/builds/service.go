package builds

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-recipe-tool/internal/groupconfig"
	"github.com/openstack-charmers/charm-recipe-tool/internal/launchpad"
)

const buildLogErrorPatternConstant = `(ERROR|ModuleNotFoundError)`

var buildLogErrorPattern = regexp.MustCompile(buildLogErrorPatternConstant)

// LaunchpadAPI is the slice of the Launchpad web service the build service
// depends on.
type LaunchpadAPI interface {
	Person(executionContext context.Context, personName string) (*launchpad.Person, error)
	Project(executionContext context.Context, projectName string) (*launchpad.Project, error)
	CharmRecipes(executionContext context.Context, owner *launchpad.Person, project *launchpad.Project) ([]launchpad.CharmRecipe, error)
	Builds(executionContext context.Context, recipe *launchpad.CharmRecipe) ([]launchpad.Build, error)
	BuildLog(executionContext context.Context, buildLogURL string) (string, error)
	RequestBuilds(executionContext context.Context, recipe *launchpad.CharmRecipe) (*launchpad.BuildRequest, error)
}

// Service inspects and requests recipe builds.
type Service struct {
	launchpadAPI LaunchpadAPI
	logger       *zap.Logger
	clock        func() time.Time
}

// NewService constructs a build service.
func NewService(launchpadAPI LaunchpadAPI, logger *zap.Logger) *Service {
	return &Service{launchpadAPI: launchpadAPI, logger: logger, clock: time.Now}
}

// CheckOptions filters which builds are reported.
type CheckOptions struct {
	Architectures []string
	Channels      []string
	DetectErrors  bool
}

// RequestOptions controls build requests.
type RequestOptions struct {
	Force    bool
	Branches []string
	Channels []string
	DryRun   bool
}

// BuildStatus is the reported state of one build.
type BuildStatus struct {
	Project           string     `json:"project"`
	Recipe            string     `json:"recipe"`
	SeriesArch        string     `json:"series_arch"`
	State             string     `json:"state"`
	Revision          string     `json:"revision"`
	DateBuilt         *time.Time `json:"date_built,omitempty"`
	Age               string     `json:"age,omitempty"`
	StoreUploadStatus string     `json:"store_upload_status,omitempty"`
	StoreRevision     int        `json:"store_revision,omitempty"`
	UploadError       string     `json:"upload_error,omitempty"`
	BuildLogURL       string     `json:"build_log_url,omitempty"`
	DetectedErrors    []string   `json:"detected_errors,omitempty"`
}

// RequestResult records the outcome of a build request for one recipe.
type RequestResult struct {
	Project   string `json:"project"`
	Recipe    string `json:"recipe"`
	Requested bool   `json:"requested"`
	Reason    string `json:"reason"`
	WebLink   string `json:"web_link,omitempty"`
}

// Check reports the newest build for each series and architecture of every
// matching recipe. Only builds of the most recently built revision count;
// older revisions are superseded.
func (service *Service) Check(executionContext context.Context, configuration *groupconfig.Project, options CheckOptions) ([]BuildStatus, error) {
	recipes, lookupError := service.recipesForProject(executionContext, configuration)
	if lookupError != nil {
		return nil, lookupError
	}

	statuses := make([]BuildStatus, 0)
	for recipeIndex := range recipes {
		recipe := &recipes[recipeIndex]
		if !recipeMatchesChannels(recipe, options.Channels) {
			continue
		}

		recipeBuilds, buildsError := service.launchpadAPI.Builds(executionContext, recipe)
		if buildsError != nil {
			return nil, fmt.Errorf("listing builds for %s: %w", recipe.Name, buildsError)
		}

		for _, build := range currentRevisionBuilds(recipeBuilds) {
			if !buildMatchesArchitectures(build, options.Architectures) {
				continue
			}
			status := service.statusForBuild(configuration, recipe, build)
			if options.DetectErrors && isFailedBuildState(build.BuildState) && len(build.BuildLogURL) > 0 {
				status.DetectedErrors = service.detectLogErrors(executionContext, recipe, build)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

// Request asks Launchpad to build every matching recipe whose newest build is
// not usable. With Force set builds are requested regardless.
func (service *Service) Request(executionContext context.Context, configuration *groupconfig.Project, options RequestOptions) ([]RequestResult, error) {
	recipes, lookupError := service.recipesForProject(executionContext, configuration)
	if lookupError != nil {
		return nil, lookupError
	}

	branchRecipeNames := recipeNamesForBranches(configuration, options.Branches)

	results := make([]RequestResult, 0)
	for recipeIndex := range recipes {
		recipe := &recipes[recipeIndex]
		if !recipeMatchesChannels(recipe, options.Channels) {
			continue
		}
		if branchRecipeNames != nil && !branchRecipeNames[recipe.Name] {
			continue
		}

		recipeBuilds, buildsError := service.launchpadAPI.Builds(executionContext, recipe)
		if buildsError != nil {
			return nil, fmt.Errorf("listing builds for %s: %w", recipe.Name, buildsError)
		}

		result := RequestResult{Project: configuration.LaunchpadProject, Recipe: recipe.Name}
		buildValid, validityReason := lastBuildValidity(recipe, recipeBuilds)
		if buildValid && !options.Force {
			result.Reason = validityReason
			results = append(results, result)
			continue
		}

		result.Reason = validityReason
		if options.Force {
			result.Reason = "forced"
		}

		if options.DryRun {
			service.logger.Info("would request builds",
				zap.String("recipe", recipe.Name),
				zap.String("reason", result.Reason))
			result.Requested = true
			results = append(results, result)
			continue
		}

		buildRequest, requestError := service.launchpadAPI.RequestBuilds(executionContext, recipe)
		if requestError != nil {
			return results, fmt.Errorf("requesting builds for %s: %w", recipe.Name, requestError)
		}
		service.logger.Info("requested builds",
			zap.String("recipe", recipe.Name),
			zap.String("reason", result.Reason))
		result.Requested = true
		result.WebLink = buildRequest.WebLink
		results = append(results, result)
	}
	return results, nil
}

func (service *Service) recipesForProject(executionContext context.Context, configuration *groupconfig.Project) ([]launchpad.CharmRecipe, error) {
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
	return recipes, nil
}

func (service *Service) statusForBuild(configuration *groupconfig.Project, recipe *launchpad.CharmRecipe, build launchpad.Build) BuildStatus {
	status := BuildStatus{
		Project:           configuration.LaunchpadProject,
		Recipe:            recipe.Name,
		SeriesArch:        build.SeriesArch(),
		State:             build.BuildState,
		Revision:          build.ShortRevision(),
		DateBuilt:         build.DateBuilt,
		StoreUploadStatus: build.StoreUploadStatus,
		StoreRevision:     build.StoreUploadRevision,
		UploadError:       build.StoreUploadErrorMessage,
		BuildLogURL:       build.BuildLogURL,
	}
	if build.DateBuilt != nil {
		status.Age = humanizeSince(service.clock(), *build.DateBuilt)
	}
	return status
}

func (service *Service) detectLogErrors(executionContext context.Context, recipe *launchpad.CharmRecipe, build launchpad.Build) []string {
	logContents, logError := service.launchpadAPI.BuildLog(executionContext, build.BuildLogURL)
	if logError != nil {
		service.logger.Warn("could not fetch build log",
			zap.String("recipe", recipe.Name),
			zap.String("build", build.SeriesArch()),
			zap.Error(logError))
		return nil
	}
	return ScanLogForErrors(logContents)
}

// currentRevisionBuilds keeps the newest build per series and architecture of
// the revision the newest build was made from. Launchpad lists builds newest
// first, so scanning stops at the first older revision.
func currentRevisionBuilds(recipeBuilds []launchpad.Build) []launchpad.Build {
	if len(recipeBuilds) == 0 {
		return nil
	}
	currentRevision := recipeBuilds[0].RevisionID

	newestBySeriesArch := make(map[string]launchpad.Build)
	seriesArchOrder := make([]string, 0)
	for _, build := range recipeBuilds {
		if build.RevisionID != currentRevision {
			break
		}
		seriesArchKey := build.SeriesArch()
		if _, alreadySeen := newestBySeriesArch[seriesArchKey]; alreadySeen {
			continue
		}
		newestBySeriesArch[seriesArchKey] = build
		seriesArchOrder = append(seriesArchOrder, seriesArchKey)
	}

	orderedBuilds := make([]launchpad.Build, 0, len(seriesArchOrder))
	for _, seriesArchKey := range seriesArchOrder {
		orderedBuilds = append(orderedBuilds, newestBySeriesArch[seriesArchKey])
	}
	return orderedBuilds
}

// lastBuildValidity reports whether the newest builds of a recipe are usable
// and why. A stale recipe needs a rebuild regardless of its build states, and
// a successful build only counts once the store accepted it when the recipe is
// authorized to upload.
func lastBuildValidity(recipe *launchpad.CharmRecipe, recipeBuilds []launchpad.Build) (bool, string) {
	latestBuilds := currentRevisionBuilds(recipeBuilds)
	if len(latestBuilds) == 0 {
		return false, "no builds yet"
	}
	if recipe.IsStale {
		return false, "recipe is stale"
	}
	for _, build := range latestBuilds {
		switch build.BuildState {
		case launchpad.BuildStateNeedsBuilding, launchpad.BuildStateCurrentlyBuilding, launchpad.BuildStateUploadingBuild:
			return true, fmt.Sprintf("build for %s still in progress", build.SeriesArch())
		case launchpad.BuildStateSuccessful:
			if recipe.CanUploadToStore && build.StoreUploadStatus != launchpad.StoreUploadStatusUploaded {
				return false, fmt.Sprintf("build for %s not uploaded to the store", build.SeriesArch())
			}
		default:
			return false, fmt.Sprintf("build for %s in state %q", build.SeriesArch(), build.BuildState)
		}
	}
	return true, "last build succeeded"
}

func isFailedBuildState(buildState string) bool {
	switch buildState {
	case launchpad.BuildStateFailedToBuild, launchpad.BuildStateFailedToUpload:
		return true
	default:
		return false
	}
}

// ScanLogForErrors returns the log lines matching the known failure markers,
// trimmed to the matching lines themselves.
func ScanLogForErrors(logContents string) []string {
	matchedLines := make([]string, 0)
	lineStart := 0
	for lineStart <= len(logContents) {
		lineEnd := lineStart
		for lineEnd < len(logContents) && logContents[lineEnd] != '\n' {
			lineEnd++
		}
		lineValue := logContents[lineStart:lineEnd]
		if buildLogErrorPattern.MatchString(lineValue) {
			matchedLines = append(matchedLines, lineValue)
		}
		lineStart = lineEnd + 1
	}
	return matchedLines
}

// recipeNamesForBranches expands the configured branches matching the filters
// into the recipe names they own. A nil result means no branch filter was
// given and every recipe qualifies.
func recipeNamesForBranches(configuration *groupconfig.Project, branchFilters []string) map[string]bool {
	if len(branchFilters) == 0 {
		return nil
	}
	matchingNames := make(map[string]bool)
	for referencePath, specification := range configuration.Branches {
		branchName := groupconfig.BranchName(referencePath)
		branchMatched := false
		for _, filterValue := range branchFilters {
			if filterValue == branchName {
				branchMatched = true
				break
			}
		}
		if !branchMatched {
			continue
		}
		trackGroups := []groupconfig.TrackGroup{{Track: "latest"}}
		if specification.Upload && len(specification.Channels) > 0 {
			trackGroups = groupconfig.GroupChannelsByTrack(specification.Channels)
		}
		for _, trackGroup := range trackGroups {
			matchingNames[groupconfig.RecipeName(specification.RecipeTemplate, configuration.LaunchpadProject, referencePath, trackGroup.Track)] = true
		}
	}
	return matchingNames
}

func recipeMatchesChannels(recipe *launchpad.CharmRecipe, channelFilters []string) bool {
	if len(channelFilters) == 0 {
		return true
	}
	recipeChannels := make(map[string]bool, len(recipe.StoreChannels))
	for _, channelValue := range recipe.StoreChannels {
		recipeChannels[normalizeChannel(channelValue)] = true
	}
	for _, filterValue := range channelFilters {
		if recipeChannels[normalizeChannel(filterValue)] {
			return true
		}
	}
	return false
}

func normalizeChannel(channelValue string) string {
	parsedChannel, parseError := groupconfig.ParseChannel(channelValue)
	if parseError != nil {
		return channelValue
	}
	return parsedChannel.String()
}

func buildMatchesArchitectures(build launchpad.Build, architectureFilters []string) bool {
	if len(architectureFilters) == 0 {
		return true
	}
	for _, architecture := range architectureFilters {
		if build.Arch() == architecture {
			return true
		}
	}
	return false
}
