package groupconfig

import (
	"fmt"
	"strings"
)

const (
	branchReferencePrefixConstant      = "refs/heads/"
	branchNameSlashReplacementConstant = "-"
	defaultRecipeTemplateConstant      = "{project}.{branch}.{track}"
	recipeProjectPlaceholderConstant   = "{project}"
	recipeBranchPlaceholderConstant    = "{branch}"
	recipeTrackPlaceholderConstant     = "{track}"
)

// BranchDocument mirrors one branch entry in a group configuration file.
// Boolean fields are pointers so absent values can fall back to defaults.
type BranchDocument struct {
	Channels       []string          `yaml:"channels"`
	BuildChannels  map[string]string `yaml:"build-channels"`
	BuildPath      string            `yaml:"build-path"`
	AutoBuild      *bool             `yaml:"auto-build"`
	Upload         *bool             `yaml:"upload"`
	RecipeTemplate string            `yaml:"recipe-name"`
	Enabled        *bool             `yaml:"enabled"`
}

// ProjectDocument mirrors one project entry in a group configuration file.
type ProjectDocument struct {
	Name             string                    `yaml:"name"`
	CharmhubName     string                    `yaml:"charmhub"`
	LaunchpadProject string                    `yaml:"launchpad"`
	Team             string                    `yaml:"team"`
	Repository       string                    `yaml:"repository"`
	Branches         map[string]BranchDocument `yaml:"branches"`
}

// GroupDocument mirrors a whole group configuration file.
type GroupDocument struct {
	Defaults struct {
		Team     string                    `yaml:"team"`
		Branches map[string]BranchDocument `yaml:"branches"`
	} `yaml:"defaults"`
	Projects []ProjectDocument `yaml:"projects"`
}

// BranchSpecification is a branch entry with all defaults resolved.
type BranchSpecification struct {
	Channels       []string
	BuildChannels  map[string]string
	BuildPath      string
	AutoBuild      bool
	Upload         bool
	RecipeTemplate string
	Enabled        bool
}

// Project is a fully resolved charm project from the group configuration.
// Branches are keyed by their full git reference path (refs/heads/...).
type Project struct {
	Name             string
	Team             string
	CharmhubName     string
	LaunchpadProject string
	Repository       string
	ProjectGroup     string
	Branches         map[string]BranchSpecification
}

// BranchName strips the refs/heads/ prefix from a reference path.
func BranchName(referencePath string) string {
	return strings.TrimPrefix(referencePath, branchReferencePrefixConstant)
}

// BranchReference prefixes a bare branch name with refs/heads/.
func BranchReference(branchName string) string {
	if strings.HasPrefix(branchName, branchReferencePrefixConstant) {
		return branchName
	}
	return branchReferencePrefixConstant + branchName
}

// RecipeName expands a recipe name template for a project, branch reference,
// and track. Slashes in the branch name are replaced because recipe names
// may not contain them.
func RecipeName(template string, launchpadProject string, referencePath string, track string) string {
	recipeTemplate := template
	if len(strings.TrimSpace(recipeTemplate)) == 0 {
		recipeTemplate = defaultRecipeTemplateConstant
	}
	flattenedBranch := strings.ReplaceAll(BranchName(referencePath), "/", branchNameSlashReplacementConstant)
	replacer := strings.NewReplacer(
		recipeProjectPlaceholderConstant, launchpadProject,
		recipeBranchPlaceholderConstant, flattenedBranch,
		recipeTrackPlaceholderConstant, track,
	)
	return replacer.Replace(recipeTemplate)
}

// DefaultRecipeName expands the default recipe template.
func DefaultRecipeName(launchpadProject string, referencePath string, track string) string {
	return RecipeName(defaultRecipeTemplateConstant, launchpadProject, referencePath, track)
}

// Matches reports whether the project answers to any of the given selectors.
// Selectors match either the Launchpad project name or the charmhub name; an
// empty selector list matches everything.
func (project *Project) Matches(selectors []string) bool {
	if len(selectors) == 0 {
		return true
	}
	for _, selector := range selectors {
		if selector == project.LaunchpadProject || selector == project.CharmhubName {
			return true
		}
	}
	return false
}

// MergeBranchDocument overlays a branch document onto the specification,
// leaving unset fields untouched.
func (specification *BranchSpecification) MergeBranchDocument(document BranchDocument) {
	if len(document.Channels) > 0 {
		specification.Channels = append([]string(nil), document.Channels...)
	}
	if len(document.BuildChannels) > 0 {
		mergedBuildChannels := make(map[string]string, len(document.BuildChannels))
		for channelKey, channelValue := range document.BuildChannels {
			mergedBuildChannels[channelKey] = channelValue
		}
		specification.BuildChannels = mergedBuildChannels
	}
	if len(document.BuildPath) > 0 {
		specification.BuildPath = document.BuildPath
	}
	if document.AutoBuild != nil {
		specification.AutoBuild = *document.AutoBuild
	}
	if document.Upload != nil {
		specification.Upload = *document.Upload
	}
	if len(document.RecipeTemplate) > 0 {
		specification.RecipeTemplate = document.RecipeTemplate
	}
	if document.Enabled != nil {
		specification.Enabled = *document.Enabled
	}
}

func defaultBranchSpecification() BranchSpecification {
	return BranchSpecification{
		AutoBuild:      true,
		Upload:         true,
		RecipeTemplate: defaultRecipeTemplateConstant,
		Enabled:        true,
	}
}

// String renders the project with its branch-to-channel mapping.
func (project *Project) String() string {
	builder := &strings.Builder{}
	fmt.Fprintf(builder, "%s (charmhub: %s, launchpad: %s, team: %s)", project.Name, project.CharmhubName, project.LaunchpadProject, project.Team)
	for referencePath, specification := range project.Branches {
		fmt.Fprintf(builder, "\n  %s -> %s", BranchName(referencePath), strings.Join(specification.Channels, ", "))
	}
	return builder.String()
}
