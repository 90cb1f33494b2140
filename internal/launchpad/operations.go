package launchpad

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	gitCollectionPathConstant          = "+git"
	charmRecipeCollectionPathConstant  = "+charm-recipes"
	personPathTemplateConstant         = "~%s"
	operationGetRepositoriesConstant   = "getRepositories"
	operationSetDefaultRepoConstant    = "setDefaultRepository"
	operationFindByOwnerConstant       = "findByOwner"
	operationNewRecipeConstant         = "new"
	operationNewCodeImportConstant     = "newCodeImport"
	operationRequestImportConstant     = "requestImport"
	operationRequestBuildsConstant     = "requestBuilds"
	rcsTypeGitConstant                 = "Git"
	booleanTrueFormConstant            = "true"
	booleanFalseFormConstant           = "false"
	gzipMagicFirstByteConstant         = 0x1f
	gzipMagicSecondByteConstant        = 0x8b
	buildLogDecompressTemplateConstant = "unable to decompress build log: %w"

	operationNamePerson               = OperationName("GetPerson")
	operationNameProject              = OperationName("GetProject")
	operationNameGetRepositories      = OperationName("GetRepositories")
	operationNameSetDefaultRepository = OperationName("SetDefaultRepository")
	operationNameImportRepository     = OperationName("ImportRepository")
	operationNameRequestCodeImport    = OperationName("RequestCodeImport")
	operationNameGitRefs              = OperationName("GetGitRefs")
	operationNameCharmRecipes         = OperationName("FindCharmRecipes")
	operationNameCreateCharmRecipe    = OperationName("CreateCharmRecipe")
	operationNameUpdateCharmRecipe    = OperationName("UpdateCharmRecipe")
	operationNameDeleteCharmRecipe    = OperationName("DeleteCharmRecipe")
	operationNameSetProjectVCS        = OperationName("SetProjectVCS")
	operationNameBuilds               = OperationName("GetBuilds")
	operationNameRequestBuilds        = OperationName("RequestBuilds")
	operationNameBuildLog             = OperationName("FetchBuildLog")
)

// Person fetches a Launchpad person or team by name.
func (client *Client) Person(executionContext context.Context, personName string) (*Person, error) {
	var person Person
	personURL := client.serviceRoot + fmt.Sprintf(personPathTemplateConstant, personName)
	if requestError := client.getJSON(executionContext, personURL, nil, &person); requestError != nil {
		return nil, OperationError{Operation: operationNamePerson, Cause: requestError}
	}
	return &person, nil
}

// Project fetches a Launchpad project by name.
func (client *Client) Project(executionContext context.Context, projectName string) (*Project, error) {
	var project Project
	projectURL := client.serviceRoot + projectName
	if requestError := client.getJSON(executionContext, projectURL, nil, &project); requestError != nil {
		return nil, OperationError{Operation: operationNameProject, Cause: requestError}
	}
	return &project, nil
}

// DefaultGitRepository returns the first git repository targeting the project
// that is owned by the given owner, or a RepositoryNotFoundError when none
// exists.
func (client *Client) DefaultGitRepository(executionContext context.Context, owner *Person, project *Project) (*GitRepository, error) {
	queryParameters := url.Values{}
	queryParameters.Set(wsOperationParameterConstant, operationGetRepositoriesConstant)
	queryParameters.Set("target", project.SelfLink)

	var ownedRepository *GitRepository
	collectionURL := client.serviceRoot + gitCollectionPathConstant
	pagingError := client.collectPages(executionContext, collectionURL, queryParameters, func(rawEntries json.RawMessage) error {
		var repositories []GitRepository
		if decodeError := json.Unmarshal(rawEntries, &repositories); decodeError != nil {
			return ResponseDecodingError{Operation: operationNameGetRepositories, Cause: decodeError}
		}
		for repositoryIndex := range repositories {
			if repositories[repositoryIndex].OwnerLink == owner.SelfLink && ownedRepository == nil {
				ownedRepository = &repositories[repositoryIndex]
			}
		}
		return nil
	})
	if pagingError != nil {
		return nil, OperationError{Operation: operationNameGetRepositories, Cause: pagingError}
	}
	if ownedRepository == nil {
		return nil, RepositoryNotFoundError{ProjectName: project.Name, OwnerName: owner.Name}
	}
	return ownedRepository, nil
}

// SetDefaultRepository marks the repository as the project's default.
func (client *Client) SetDefaultRepository(executionContext context.Context, project *Project, repository *GitRepository) error {
	formValues := url.Values{}
	formValues.Set(wsOperationParameterConstant, operationSetDefaultRepoConstant)
	formValues.Set("target", project.SelfLink)
	formValues.Set("repository", repository.SelfLink)

	if _, requestError := client.postForm(executionContext, client.serviceRoot+gitCollectionPathConstant, formValues); requestError != nil {
		return OperationError{Operation: operationNameSetDefaultRepository, Cause: requestError}
	}
	return nil
}

// ImportRepository creates a code import mirroring the upstream URL into a
// new git repository owned by the owner, and returns that repository.
func (client *Client) ImportRepository(executionContext context.Context, owner *Person, project *Project, upstreamURL string) (*GitRepository, error) {
	formValues := url.Values{}
	formValues.Set(wsOperationParameterConstant, operationNewCodeImportConstant)
	formValues.Set("owner", owner.SelfLink)
	formValues.Set("rcs_type", rcsTypeGitConstant)
	formValues.Set("target_rcs_type", rcsTypeGitConstant)
	formValues.Set("url", upstreamURL)
	formValues.Set("branch_name", project.Name)

	payload, requestError := client.postForm(executionContext, project.SelfLink, formValues)
	if requestError != nil {
		return nil, OperationError{Operation: operationNameImportRepository, Cause: requestError}
	}

	var codeImport CodeImport
	if decodeError := json.Unmarshal(payload, &codeImport); decodeError != nil {
		return nil, ResponseDecodingError{Operation: operationNameImportRepository, Cause: decodeError}
	}

	var repository GitRepository
	if fetchError := client.getJSON(executionContext, codeImport.GitRepositoryLink, nil, &repository); fetchError != nil {
		return nil, OperationError{Operation: operationNameImportRepository, Cause: fetchError}
	}
	return &repository, nil
}

// RequestCodeImport asks Launchpad to run the repository's code import now.
func (client *Client) RequestCodeImport(executionContext context.Context, repository *GitRepository) error {
	if len(repository.CodeImportLink) == 0 {
		return OperationError{Operation: operationNameRequestCodeImport, Cause: fmt.Errorf("repository %s has no code import", repository.Name)}
	}
	formValues := url.Values{}
	formValues.Set(wsOperationParameterConstant, operationRequestImportConstant)
	if _, requestError := client.postForm(executionContext, repository.CodeImportLink, formValues); requestError != nil {
		return OperationError{Operation: operationNameRequestCodeImport, Cause: requestError}
	}
	return nil
}

// GitRefs lists the references (branches) of a repository.
func (client *Client) GitRefs(executionContext context.Context, repository *GitRepository) ([]GitRef, error) {
	references := make([]GitRef, 0)
	pagingError := client.collectPages(executionContext, repository.RefsCollectionLink, nil, func(rawEntries json.RawMessage) error {
		var pageReferences []GitRef
		if decodeError := json.Unmarshal(rawEntries, &pageReferences); decodeError != nil {
			return ResponseDecodingError{Operation: operationNameGitRefs, Cause: decodeError}
		}
		references = append(references, pageReferences...)
		return nil
	})
	if pagingError != nil {
		return nil, OperationError{Operation: operationNameGitRefs, Cause: pagingError}
	}
	return references, nil
}

// CharmRecipes lists the charm recipes owned by the owner within the
// project. Launchpad only filters by owner, so the project filter is applied
// client-side.
func (client *Client) CharmRecipes(executionContext context.Context, owner *Person, project *Project) ([]CharmRecipe, error) {
	queryParameters := url.Values{}
	queryParameters.Set(wsOperationParameterConstant, operationFindByOwnerConstant)
	queryParameters.Set("owner", owner.SelfLink)

	recipes := make([]CharmRecipe, 0)
	collectionURL := client.serviceRoot + charmRecipeCollectionPathConstant
	pagingError := client.collectPages(executionContext, collectionURL, queryParameters, func(rawEntries json.RawMessage) error {
		var pageRecipes []CharmRecipe
		if decodeError := json.Unmarshal(rawEntries, &pageRecipes); decodeError != nil {
			return ResponseDecodingError{Operation: operationNameCharmRecipes, Cause: decodeError}
		}
		for _, recipe := range pageRecipes {
			if recipe.ProjectLink == project.SelfLink {
				recipes = append(recipes, recipe)
			}
		}
		return nil
	})
	if pagingError != nil {
		return nil, OperationError{Operation: operationNameCharmRecipes, Cause: pagingError}
	}
	return recipes, nil
}

// CharmRecipeCreateArguments carries the fields of a new charm recipe.
type CharmRecipeCreateArguments struct {
	Name              string
	Owner             *Person
	Project           *Project
	GitRef            *GitRef
	StoreName         string
	AutoBuild         bool
	AutoBuildChannels map[string]string
	BuildPath         string
	StoreUpload       bool
	StoreChannels     []string
}

// CreateCharmRecipe creates a new charm recipe.
func (client *Client) CreateCharmRecipe(executionContext context.Context, arguments CharmRecipeCreateArguments) (*CharmRecipe, error) {
	formValues := url.Values{}
	formValues.Set(wsOperationParameterConstant, operationNewRecipeConstant)
	formValues.Set("name", arguments.Name)
	formValues.Set("owner", arguments.Owner.SelfLink)
	formValues.Set("project", arguments.Project.SelfLink)
	formValues.Set("git_ref", arguments.GitRef.SelfLink)
	formValues.Set("store_name", arguments.StoreName)
	formValues.Set("auto_build", formatFormBoolean(arguments.AutoBuild))
	formValues.Set("store_upload", formatFormBoolean(arguments.StoreUpload))
	if len(arguments.BuildPath) > 0 {
		formValues.Set("build_path", arguments.BuildPath)
	}
	if arguments.StoreUpload && len(arguments.StoreChannels) > 0 {
		encodedChannels, encodeError := json.Marshal(arguments.StoreChannels)
		if encodeError != nil {
			return nil, OperationError{Operation: operationNameCreateCharmRecipe, Cause: encodeError}
		}
		formValues.Set("store_channels", string(encodedChannels))
	}
	if len(arguments.AutoBuildChannels) > 0 {
		encodedBuildChannels, encodeError := json.Marshal(arguments.AutoBuildChannels)
		if encodeError != nil {
			return nil, OperationError{Operation: operationNameCreateCharmRecipe, Cause: encodeError}
		}
		formValues.Set("auto_build_channels", string(encodedBuildChannels))
	}

	payload, requestError := client.postForm(executionContext, client.serviceRoot+charmRecipeCollectionPathConstant, formValues)
	if requestError != nil {
		return nil, OperationError{Operation: operationNameCreateCharmRecipe, Cause: requestError}
	}

	var recipe CharmRecipe
	if decodeError := json.Unmarshal(payload, &recipe); decodeError != nil {
		return nil, ResponseDecodingError{Operation: operationNameCreateCharmRecipe, Cause: decodeError}
	}
	return &recipe, nil
}

// UpdateCharmRecipe applies the changed fields to an existing recipe entry.
// Field names follow the web-service schema (auto_build, store_channels, ...).
func (client *Client) UpdateCharmRecipe(executionContext context.Context, recipeLink string, updatedFields map[string]any) error {
	if patchError := client.patchEntry(executionContext, recipeLink, updatedFields); patchError != nil {
		return OperationError{Operation: operationNameUpdateCharmRecipe, Cause: patchError}
	}
	return nil
}

// DeleteCharmRecipe removes a recipe entry.
func (client *Client) DeleteCharmRecipe(executionContext context.Context, recipeLink string) error {
	if deleteError := client.deleteEntry(executionContext, recipeLink); deleteError != nil {
		return OperationError{Operation: operationNameDeleteCharmRecipe, Cause: deleteError}
	}
	return nil
}

// SetProjectVCS updates the project's version control system field.
func (client *Client) SetProjectVCS(executionContext context.Context, project *Project, vcsValue string) error {
	if patchError := client.patchEntry(executionContext, project.SelfLink, map[string]any{"vcs": vcsValue}); patchError != nil {
		return OperationError{Operation: operationNameSetProjectVCS, Cause: patchError}
	}
	return nil
}

// Builds lists the builds of a recipe, newest first as Launchpad returns
// them.
func (client *Client) Builds(executionContext context.Context, recipe *CharmRecipe) ([]Build, error) {
	builds := make([]Build, 0)
	pagingError := client.collectPages(executionContext, recipe.BuildsCollectionLink, nil, func(rawEntries json.RawMessage) error {
		var pageBuilds []Build
		if decodeError := json.Unmarshal(rawEntries, &pageBuilds); decodeError != nil {
			return ResponseDecodingError{Operation: operationNameBuilds, Cause: decodeError}
		}
		builds = append(builds, pageBuilds...)
		return nil
	})
	if pagingError != nil {
		return nil, OperationError{Operation: operationNameBuilds, Cause: pagingError}
	}
	return builds, nil
}

// RequestBuilds asks Launchpad to build the recipe. The recipe's auto-build
// channels must be passed along or the builds run without the overrides the
// recipe defines.
func (client *Client) RequestBuilds(executionContext context.Context, recipe *CharmRecipe) (*BuildRequest, error) {
	formValues := url.Values{}
	formValues.Set(wsOperationParameterConstant, operationRequestBuildsConstant)
	if len(recipe.AutoBuildChannels) > 0 {
		encodedChannels, encodeError := json.Marshal(recipe.AutoBuildChannels)
		if encodeError != nil {
			return nil, OperationError{Operation: operationNameRequestBuilds, Cause: encodeError}
		}
		formValues.Set("channels", string(encodedChannels))
	}

	payload, requestError := client.postForm(executionContext, recipe.SelfLink, formValues)
	if requestError != nil {
		return nil, OperationError{Operation: operationNameRequestBuilds, Cause: requestError}
	}

	var buildRequest BuildRequest
	if decodeError := json.Unmarshal(payload, &buildRequest); decodeError != nil {
		return nil, ResponseDecodingError{Operation: operationNameRequestBuilds, Cause: decodeError}
	}
	return &buildRequest, nil
}

// BuildLog downloads a build log, transparently decompressing gzip content.
func (client *Client) BuildLog(executionContext context.Context, buildLogURL string) (string, error) {
	payload, requestError := client.do(executionContext, http.MethodGet, buildLogURL, "", nil)
	if requestError != nil {
		return "", OperationError{Operation: operationNameBuildLog, Cause: requestError}
	}

	if len(payload) > 2 && payload[0] == gzipMagicFirstByteConstant && payload[1] == gzipMagicSecondByteConstant {
		gzipReader, gzipError := gzip.NewReader(bytes.NewReader(payload))
		if gzipError != nil {
			return "", OperationError{Operation: operationNameBuildLog, Cause: fmt.Errorf(buildLogDecompressTemplateConstant, gzipError)}
		}
		defer gzipReader.Close()
		decompressedPayload, readError := io.ReadAll(gzipReader)
		if readError != nil {
			return "", OperationError{Operation: operationNameBuildLog, Cause: fmt.Errorf(buildLogDecompressTemplateConstant, readError)}
		}
		return string(decompressedPayload), nil
	}
	return string(payload), nil
}

func formatFormBoolean(value bool) string {
	if value {
		return booleanTrueFormConstant
	}
	return booleanFalseFormConstant
}
